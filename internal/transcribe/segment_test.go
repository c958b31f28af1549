package transcribe

import (
	"strings"
	"testing"
)

func TestMergeFrenchExample(t *testing.T) {
	segments := []Segment{
		{Text: "Bonjour", Timestamp: 0},
		{Text: "à tous", Timestamp: 0.5},
		{Text: "Commençons.", Timestamp: 1.0},
		{Text: "La réunion", Timestamp: 1.3},
	}

	merged := Merge(segments, DefaultMergeThresholds())

	if len(merged) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(merged), merged)
	}
	if merged[0].Text != "Bonjour à tous Commençons. La réunion" {
		t.Fatalf("unexpected text %q", merged[0].Text)
	}
	if merged[0].Timestamp != 0 {
		t.Fatalf("expected timestamp 0, got %v", merged[0].Timestamp)
	}
}

func TestMergeRules(t *testing.T) {
	th := MergeThresholds{Continuation: 5, Unfinished: 4, Negligible: 1}

	tests := []struct {
		name     string
		segments []Segment
		want     []string
	}{
		{
			name: "lowercase continuation within bound",
			segments: []Segment{
				{Text: "We should ship.", Timestamp: 0},
				{Text: "and then review", Timestamp: 4.5},
			},
			want: []string{"We should ship. and then review"},
		},
		{
			name: "lowercase continuation beyond bound",
			segments: []Segment{
				{Text: "We should ship.", Timestamp: 0},
				{Text: "and then review", Timestamp: 5.5},
			},
			want: []string{"We should ship.", "and then review"},
		},
		{
			name: "unfinished sentence within bound",
			segments: []Segment{
				{Text: "The budget for", Timestamp: 10},
				{Text: "Next quarter is fixed.", Timestamp: 13.9},
			},
			want: []string{"The budget for Next quarter is fixed."},
		},
		{
			name: "unfinished sentence beyond bound",
			segments: []Segment{
				{Text: "The budget for", Timestamp: 10},
				{Text: "Next quarter is fixed.", Timestamp: 14.5},
			},
			want: []string{"The budget for", "Next quarter is fixed."},
		},
		{
			name: "finished sentence with negligible gap",
			segments: []Segment{
				{Text: "Done.", Timestamp: 2},
				{Text: "Next item.", Timestamp: 2.8},
			},
			want: []string{"Done. Next item."},
		},
		{
			name: "finished sentence with real pause",
			segments: []Segment{
				{Text: "Done!", Timestamp: 2},
				{Text: "Next item?", Timestamp: 3.5},
			},
			want: []string{"Done!", "Next item?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.segments, th)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d segments, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i].Text != tt.want[i] {
					t.Errorf("segment %d: expected %q, got %q", i, tt.want[i], got[i].Text)
				}
			}
		})
	}
}

func TestMergePauseMeasuredFromLastMerged(t *testing.T) {
	// Each hop is 0.9s, so every segment joins even though the total span
	// exceeds every bound.
	var segments []Segment
	for i := 0; i < 10; i++ {
		segments = append(segments, Segment{Text: "Point.", Timestamp: float64(i) * 0.9})
	}

	got := Merge(segments, DefaultMergeThresholds())
	if len(got) != 1 {
		t.Fatalf("expected a single merged segment, got %d", len(got))
	}
}

func TestMergeMonotonicAndLossless(t *testing.T) {
	segments := []Segment{
		{Text: "Alpha.", Timestamp: 0, Speaker: "A"},
		{Text: "beta", Timestamp: 2},
		{Text: "Gamma.", Timestamp: 20},
		{Text: "Delta", Timestamp: 40},
		{Text: "epsilon.", Timestamp: 41},
		{Text: "Zeta.", Timestamp: 60},
	}

	got := Merge(segments, DefaultMergeThresholds())

	if len(got) > len(segments) {
		t.Fatalf("merge increased segment count: %d > %d", len(got), len(segments))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("timestamps out of order at %d: %v < %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}

	want := strings.Join(Lines(segments), " ")
	if joined := strings.Join(Lines(got), " "); joined != want {
		t.Fatalf("text changed by merge:\nwant %q\n got %q", want, joined)
	}
	if got[0].Speaker != "A" {
		t.Fatalf("expected first speaker to be kept, got %q", got[0].Speaker)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, DefaultMergeThresholds()); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestLinesSkipsBlank(t *testing.T) {
	got := Lines([]Segment{{Text: " one "}, {Text: "  "}, {Text: "two"}})
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestFormatSegmentMarkdown(t *testing.T) {
	seg := Segment{Speaker: "Alice", Text: " Hello world. ", Timestamp: 3725.8}
	got := seg.FormatMarkdown()
	want := "**[01:02:05] Alice:** Hello world."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSegmentMarkdownUnknownSpeaker(t *testing.T) {
	seg := Segment{Text: "Hi.", Timestamp: 0}
	if got := seg.FormatMarkdown(); got != "**[00:00:00] Speaker:** Hi." {
		t.Errorf("unexpected markdown %q", got)
	}
}
