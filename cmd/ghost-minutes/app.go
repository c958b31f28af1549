package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sjawhar/ghost-minutes/internal/audiosrc"
	"github.com/sjawhar/ghost-minutes/internal/config"
	"github.com/sjawhar/ghost-minutes/internal/llm"
	"github.com/sjawhar/ghost-minutes/internal/media"
	"github.com/sjawhar/ghost-minutes/internal/notify"
	"github.com/sjawhar/ghost-minutes/internal/pipeline"
	"github.com/sjawhar/ghost-minutes/internal/server"
	"github.com/sjawhar/ghost-minutes/internal/storage"
	"github.com/sjawhar/ghost-minutes/internal/summary"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

func clientFactory(cfg config.Config) summary.ClientFactory {
	return llm.NewFactory(cfg.APIKey).Client
}

// newFetcher serves audio_ref values from API clients, so it applies the
// configured restrictions.
func newFetcher(cfg config.Config) (*audiosrc.Fetcher, error) {
	return audiosrc.New(audiosrc.Options{
		AzureConnectionString: cfg.AzureStorageConnection,
		LocalRoot:             cfg.Audio.LocalRoot,
		Schemes:               cfg.Audio.AllowedSchemes,
		Hosts:                 cfg.Audio.AllowedHosts,
	})
}

func newConsolidator(cfg config.Config) (*transcribe.Consolidator, error) {
	provider, err := transcribe.NewProvider(transcribe.ProviderConfig{
		Name:    cfg.Transcription.Provider,
		APIKey:  cfg.APIKey(cfg.Transcription.Provider),
		Model:   cfg.Transcription.Model,
		BaseURL: cfg.Transcription.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	return transcribe.NewConsolidator(provider, media.NewChunker(cfg.Server.TempDir), transcribe.ConsolidatorOptions{
		MaxUploadBytes: cfg.Transcription.MaxUploadBytes,
		ChunkTimeout:   cfg.ChunkTimeout(),
		Language:       cfg.Transcription.Language,
		Thresholds:     cfg.Transcription.Merge,
	}), nil
}

// app is the long-running service graph behind `serve`.
type app struct {
	store     *storage.CachedStore
	processor *pipeline.Processor
	deps      server.Deps
}

func newApp(ctx context.Context, cfg config.Config, warnings []string) (*app, error) {
	sqlite, err := storage.NewSQLiteStore(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	store := storage.NewCachedStore(sqlite, cfg.Pipeline.CacheSize, cfg.CacheTTL())

	fetcher, err := newFetcher(cfg)
	if err != nil {
		_ = sqlite.Close()
		return nil, err
	}

	// A missing transcription provider only disables uploads; live meetings
	// still work.
	var transcriber pipeline.Transcriber
	consolidator, err := newConsolidator(cfg)
	if err != nil {
		slog.Warn("transcription disabled", "error", err)
		warnings = append(warnings, fmt.Sprintf("transcription disabled: %v", err))
	} else {
		transcriber = consolidator
	}

	factory := clientFactory(cfg)
	summarizer := summary.New(cfg.Summarization, factory)
	hub := server.NewHub()

	notifiers := notify.Multi{hub}
	if cfg.Server.ArchiveDir != "" {
		notifiers = append(notifiers, notify.NewArchive(storage.NewWriter(cfg.Server.ArchiveDir)))
	}
	if cfg.Notify.GDriveFolderID != "" {
		drive, err := notify.NewDriveExporter(ctx, cfg.Notify.GoogleCredentialsFile, cfg.Notify.GDriveFolderID)
		if err != nil {
			slog.Warn("drive export disabled", "error", err)
			warnings = append(warnings, fmt.Sprintf("drive export disabled: %v", err))
		} else {
			notifiers = append(notifiers, drive)
		}
	}

	processor := pipeline.New(pipeline.Deps{
		Store:       store,
		Audio:       fetcher,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Extractor:   summary.NewExtractor(cfg.Summarization, factory),
		Events:      hub,
		Notifier:    notifiers,
	}, pipeline.Options{
		Caps:            cfg.Summarization.Caps,
		LiveWindow:      cfg.Summarization.LiveWindow,
		PersistAttempts: cfg.Pipeline.PersistAttempts,
		PersistDelay:    cfg.PersistDelay(),
		Workers:         cfg.Pipeline.Workers,
	})

	return &app{
		store:     store,
		processor: processor,
		deps: server.Deps{
			Hub:       hub,
			Store:     store,
			Processor: processor,
			Grouping:  cfg.Grouping,
			Hooks: server.Hooks{
				Warnings:  func() []string { return warnings },
				Templates: func() map[string]string { return templateDescriptions(summarizer) },
			},
		},
	}, nil
}

func templateDescriptions(s *summary.Summarizer) map[string]string {
	out := make(map[string]string)
	for _, name := range s.Presets() {
		p, _ := s.Preset(name)
		out[name] = p.Description
	}
	return out
}

// close drains background work before closing the database.
func (a *app) close() error {
	a.processor.Wait()
	return a.store.Close()
}
