package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 30 * time.Second
)

// CachedStore is a read-through cache over SQLiteStore keyed by meeting id.
// Every write through it drops the cached record. A read that overlapped a
// write is returned but not cached.
type CachedStore struct {
	*SQLiteStore

	cache *expirable.LRU[string, meeting.Meeting]
	load  func(ctx context.Context, id string) (meeting.Meeting, error)

	mu     sync.Mutex
	writes uint64
}

func NewCachedStore(store *SQLiteStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		SQLiteStore: store,
		cache:       expirable.NewLRU[string, meeting.Meeting](size, nil, ttl),
		load:        store.GetMeeting,
	}
}

func (c *CachedStore) GetMeeting(ctx context.Context, id string) (meeting.Meeting, error) {
	if m, ok := c.cache.Get(id); ok {
		return clone(m), nil
	}

	c.mu.Lock()
	gen := c.writes
	c.mu.Unlock()

	m, err := c.load(ctx, id)
	if err != nil {
		return meeting.Meeting{}, err
	}

	c.mu.Lock()
	if c.writes == gen {
		c.cache.Add(id, m)
	}
	c.mu.Unlock()
	return clone(m), nil
}

// invalidate runs after a write has committed or failed.
func (c *CachedStore) invalidate(id string) {
	c.mu.Lock()
	c.writes++
	c.cache.Remove(id)
	c.mu.Unlock()
}

func (c *CachedStore) CreateMeeting(ctx context.Context, m meeting.Meeting) error {
	defer c.invalidate(m.ID)
	return c.SQLiteStore.CreateMeeting(ctx, m)
}

func (c *CachedStore) AppendSegments(ctx context.Context, id string, segments []transcribe.Segment) error {
	defer c.invalidate(id)
	return c.SQLiteStore.AppendSegments(ctx, id, segments)
}

func (c *CachedStore) ReplaceSegments(ctx context.Context, id string, segments []transcribe.Segment) error {
	defer c.invalidate(id)
	return c.SQLiteStore.ReplaceSegments(ctx, id, segments)
}

func (c *CachedStore) SaveSuggestions(ctx context.Context, id string, s suggest.Suggestions) error {
	defer c.invalidate(id)
	return c.SQLiteStore.SaveSuggestions(ctx, id, s)
}

func (c *CachedStore) SaveNotes(ctx context.Context, id, notes string) error {
	defer c.invalidate(id)
	return c.SQLiteStore.SaveNotes(ctx, id, notes)
}

func (c *CachedStore) TransitionStatus(ctx context.Context, id string, to meeting.Status, from ...meeting.Status) error {
	defer c.invalidate(id)
	return c.SQLiteStore.TransitionStatus(ctx, id, to, from...)
}

func (c *CachedStore) Complete(ctx context.Context, id string, summary meeting.Summary) error {
	defer c.invalidate(id)
	return c.SQLiteStore.Complete(ctx, id, summary)
}

func (c *CachedStore) Fail(ctx context.Context, id string, message string) error {
	defer c.invalidate(id)
	return c.SQLiteStore.Fail(ctx, id, message)
}

func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// clone copies the slices callers are likely to append to, so a caller
// cannot mutate the cached value.
func clone(m meeting.Meeting) meeting.Meeting {
	m.Segments = append([]transcribe.Segment(nil), m.Segments...)
	m.Suggestions = suggest.Suggestions{
		Topics:    append([]suggest.Topic(nil), m.Suggestions.Topics...),
		Decisions: append([]suggest.Decision(nil), m.Suggestions.Decisions...),
		Actions:   append([]suggest.Action(nil), m.Suggestions.Actions...),
	}
	return m
}
