package llm

import (
	"fmt"
	"sync"
)

// Factory hands out one Client per provider/model pair and reuses it, so
// per-meeting calls share HTTP connections.
type Factory struct {
	keys func(provider string) string
	opts []Option

	mu      sync.Mutex
	clients map[string]Client
	build   func(provider, apiKey, model string, opts ...Option) (Client, error)
}

// NewFactory resolves API keys through keys at first use of each provider.
func NewFactory(keys func(provider string) string, opts ...Option) *Factory {
	return &Factory{
		keys:    keys,
		opts:    opts,
		clients: make(map[string]Client),
		build:   NewClient,
	}
}

func (f *Factory) Client(provider, model string) (Client, error) {
	key := provider + "/" + model

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c, nil
	}

	apiKey := ""
	if f.keys != nil {
		apiKey = f.keys(provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for LLM provider %q", provider)
	}

	c, err := f.build(provider, apiKey, model, f.opts...)
	if err != nil {
		return nil, err
	}
	f.clients[key] = c
	return c, nil
}
