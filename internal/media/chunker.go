package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// MinChunkDuration keeps the chunk count bounded for very dense encodings.
const MinChunkDuration = 30.0

// AudioChunk is a contiguous, time-bounded slice of a larger recording.
// StartTime and Duration are in seconds.
type AudioChunk struct {
	Data      []byte
	StartTime float64
	Duration  float64
}

type Span struct {
	Start    float64
	Duration float64
}

// PlanChunks splits totalDuration into contiguous spans sized so each one
// encodes to roughly targetSize bytes.
func PlanChunks(totalDuration float64, size, targetSize int64) ([]Span, error) {
	if totalDuration <= 0 {
		return nil, fmt.Errorf("invalid audio duration %v", totalDuration)
	}
	if size <= 0 || targetSize <= 0 {
		return nil, fmt.Errorf("invalid sizes: buffer=%d target=%d", size, targetSize)
	}

	chunkDuration := math.Floor(totalDuration * (float64(targetSize) / float64(size)))
	if chunkDuration < MinChunkDuration {
		chunkDuration = MinChunkDuration
	}

	var spans []Span
	for current := 0.0; current < totalDuration; {
		d := math.Min(chunkDuration, totalDuration-current)
		spans = append(spans, Span{Start: current, Duration: d})
		current += d
	}
	return spans, nil
}

type Chunker struct {
	tempDir string

	probe   func(ctx context.Context, path string) (float64, error)
	extract func(ctx context.Context, src, dst string, start, duration float64) error
}

func NewChunker(tempDir string) *Chunker {
	return &Chunker{
		tempDir: tempDir,
		probe:   ProbeDuration,
		extract: ExtractSpan,
	}
}

// Split cuts data into chunks of about targetSize bytes each. ext is the
// container extension (".mp3", ".m4a", ...) and is kept for every chunk
// since extraction copies the stream without re-encoding. Temporary files
// are removed whether or not the split succeeds.
func (c *Chunker) Split(ctx context.Context, data []byte, ext string, targetSize int64) ([]AudioChunk, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio buffer")
	}
	ext = normalizeExt(ext)

	if c.tempDir != "" {
		if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp directory: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(c.tempDir, "chunks-*")
	if err != nil {
		return nil, fmt.Errorf("create chunk work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	src := filepath.Join(workDir, "source"+ext)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("write source audio: %w", err)
	}

	total, err := c.probe(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}

	spans, err := PlanChunks(total, int64(len(data)), targetSize)
	if err != nil {
		return nil, err
	}

	chunks := make([]AudioChunk, 0, len(spans))
	for i, span := range spans {
		dst := filepath.Join(workDir, fmt.Sprintf("chunk-%03d%s", i, ext))
		if err := c.extract(ctx, src, dst, span.Start, span.Duration); err != nil {
			return nil, fmt.Errorf("extract chunk %d at %.2fs: %w", i, span.Start, err)
		}

		buf, err := os.ReadFile(dst)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}
		_ = os.Remove(dst)

		chunks = append(chunks, AudioChunk{Data: buf, StartTime: span.Start, Duration: span.Duration})
	}

	return chunks, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".mp3"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
