package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
)

func TestPlanChunksCoverage(t *testing.T) {
	tests := []struct {
		name   string
		total  float64
		size   int64
		target int64
	}{
		{name: "even split", total: 600, size: 40_000_000, target: 20_000_000},
		{name: "uneven tail", total: 3671.4, size: 57_000_000, target: 20_000_000},
		{name: "floored to minimum", total: 95.5, size: 100_000_000, target: 1_000_000},
		{name: "target larger than buffer", total: 42, size: 1_000, target: 5_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := PlanChunks(tt.total, tt.size, tt.target)
			if err != nil {
				t.Fatalf("PlanChunks failed: %v", err)
			}
			if len(spans) == 0 {
				t.Fatal("expected at least one span")
			}

			sum := 0.0
			expectedStart := 0.0
			for i, s := range spans {
				if math.Abs(s.Start-expectedStart) > 1e-9 {
					t.Fatalf("span %d starts at %v, expected %v (gap or overlap)", i, s.Start, expectedStart)
				}
				if i > 0 && s.Start <= spans[i-1].Start {
					t.Fatalf("span %d start %v not strictly increasing", i, s.Start)
				}
				if s.Duration <= 0 {
					t.Fatalf("span %d has non-positive duration %v", i, s.Duration)
				}
				sum += s.Duration
				expectedStart = s.Start + s.Duration
			}
			if math.Abs(sum-tt.total) > 1e-6 {
				t.Fatalf("expected total duration %v, got %v", tt.total, sum)
			}
		})
	}
}

func TestPlanChunksMinimumDuration(t *testing.T) {
	spans, err := PlanChunks(95.5, 100_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("PlanChunks failed: %v", err)
	}
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans of at most 30s, got %d", len(spans))
	}
	if spans[0].Duration != MinChunkDuration {
		t.Fatalf("expected first span of %vs, got %v", MinChunkDuration, spans[0].Duration)
	}
	if math.Abs(spans[3].Duration-5.5) > 1e-9 {
		t.Fatalf("expected tail span of 5.5s, got %v", spans[3].Duration)
	}
}

func TestPlanChunksRejectsInvalidInput(t *testing.T) {
	if _, err := PlanChunks(0, 10, 10); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if _, err := PlanChunks(10, 0, 10); err == nil {
		t.Fatal("expected error for zero buffer size")
	}
	if _, err := PlanChunks(10, 10, 0); err == nil {
		t.Fatal("expected error for zero target size")
	}
}

func newFakeChunker(dir string, total float64, failAt int) *Chunker {
	c := NewChunker(dir)
	c.probe = func(_ context.Context, path string) (float64, error) {
		if _, err := os.Stat(path); err != nil {
			return 0, err
		}
		return total, nil
	}
	calls := 0
	c.extract = func(_ context.Context, _, dst string, start, duration float64) error {
		defer func() { calls++ }()
		if calls == failAt {
			return errors.New("boom")
		}
		return os.WriteFile(dst, []byte(fmt.Sprintf("%.1f+%.1f", start, duration)), 0o600)
	}
	return c
}

func TestSplitProducesOrderedChunks(t *testing.T) {
	dir := t.TempDir()
	c := newFakeChunker(dir, 120, -1)

	data := []byte(strings.Repeat("x", 4000))
	chunks, err := c.Split(context.Background(), data, "mp3", 1000)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		want := fmt.Sprintf("%.1f+%.1f", float64(i*30), 30.0)
		if string(chunk.Data) != want {
			t.Fatalf("chunk %d: expected data %q, got %q", i, want, chunk.Data)
		}
		if chunk.StartTime != float64(i*30) {
			t.Fatalf("chunk %d: expected start %v, got %v", i, i*30, chunk.StartTime)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be cleaned up, found %d entries", len(entries))
	}
}

func TestSplitFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	c := newFakeChunker(dir, 120, 2)

	_, err := c.Split(context.Background(), []byte(strings.Repeat("x", 4000)), ".mp3", 1000)
	if err == nil {
		t.Fatal("expected Split to fail when a chunk extraction fails")
	}
	if !strings.Contains(err.Error(), "extract chunk 2") {
		t.Fatalf("expected failing chunk index in error, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be cleaned up after failure, found %d entries", len(entries))
	}
}

func TestSplitEmptyBuffer(t *testing.T) {
	c := newFakeChunker(t.TempDir(), 10, -1)
	if _, err := c.Split(context.Background(), nil, ".mp3", 1000); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}

func TestParseDuration(t *testing.T) {
	got, err := parseDuration(" 3671.424000\n")
	if err != nil {
		t.Fatalf("parseDuration failed: %v", err)
	}
	if got != 3671.424 {
		t.Fatalf("expected 3671.424, got %v", got)
	}

	for _, raw := range []string{"N/A", "", "-1"} {
		if _, err := parseDuration(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
