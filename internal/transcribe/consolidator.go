package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sjawhar/ghost-minutes/internal/media"
)

const (
	DefaultMaxUploadBytes = 20 * 1024 * 1024
	DefaultChunkTimeout   = 10 * time.Minute
)

type Splitter interface {
	Split(ctx context.Context, data []byte, ext string, targetSize int64) ([]media.AudioChunk, error)
}

type ConsolidatorOptions struct {
	MaxUploadBytes int64
	ChunkTimeout   time.Duration
	Language       string
	Thresholds     MergeThresholds
}

// Consolidator turns one recording into a single ordered, merged segment
// stream, chunking it first when it exceeds the provider upload limit.
type Consolidator struct {
	provider Provider
	splitter Splitter
	opts     ConsolidatorOptions
}

func NewConsolidator(provider Provider, splitter Splitter, opts ConsolidatorOptions) *Consolidator {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = DefaultChunkTimeout
	}
	if opts.Thresholds == (MergeThresholds{}) {
		opts.Thresholds = DefaultMergeThresholds()
	}
	return &Consolidator{provider: provider, splitter: splitter, opts: opts}
}

// Progress receives the unmerged global segments accumulated so far, after
// every chunk.
type Progress func(segments []Segment)

// Transcribe uses language as the provider hint, or the configured language
// when it is empty.
func (c *Consolidator) Transcribe(ctx context.Context, data []byte, filename, language string, progress Progress) ([]Segment, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio")
	}

	chunks := []media.AudioChunk{{Data: data}}
	if int64(len(data)) > c.opts.MaxUploadBytes {
		if c.splitter == nil {
			return nil, fmt.Errorf("audio is %d bytes, over the %d byte limit, and no chunker is configured", len(data), c.opts.MaxUploadBytes)
		}
		var err error
		chunks, err = c.splitter.Split(ctx, data, filepath.Ext(filename), c.opts.MaxUploadBytes)
		if err != nil {
			return nil, fmt.Errorf("split audio: %w", err)
		}
		slog.Info("audio split for transcription", "bytes", len(data), "chunks", len(chunks))
	}

	if language == "" {
		language = c.opts.Language
	}

	var all []Segment
	for i, chunk := range chunks {
		local, err := c.transcribeChunk(ctx, Audio{Data: chunk.Data, Filename: chunkName(filename, i, len(chunks)), Language: language})
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d/%d: %w", i+1, len(chunks), err)
		}

		all = append(all, offsetSegments(local, chunk.StartTime)...)
		if progress != nil {
			progress(append([]Segment(nil), all...))
		}
	}

	return Merge(all, c.opts.Thresholds), nil
}

func (c *Consolidator) transcribeChunk(ctx context.Context, audio Audio) ([]ProviderSegment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ChunkTimeout)
	defer cancel()

	segments, err := c.provider.Transcribe(ctx, audio)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", c.opts.ChunkTimeout, err)
		}
		return nil, err
	}
	return segments, nil
}

func offsetSegments(local []ProviderSegment, start float64) []Segment {
	out := make([]Segment, 0, len(local))
	for _, s := range local {
		out = append(out, Segment{Text: s.Text, Timestamp: start + s.Start, Speaker: s.Speaker})
	}
	return out
}

func chunkName(filename string, i, total int) string {
	if filename == "" {
		filename = "audio.mp3"
	}
	if total == 1 {
		return filepath.Base(filename)
	}
	ext := filepath.Ext(filename)
	base := filepath.Base(filename[:len(filename)-len(ext)])
	return fmt.Sprintf("%s-part%03d%s", base, i, ext)
}
