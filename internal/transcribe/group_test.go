package transcribe

import (
	"strings"
	"testing"
)

func TestGroupSpeakerChangeSplits(t *testing.T) {
	segments := []Segment{
		{Text: "Hello", Timestamp: 0, Speaker: "A"},
		{Text: "Hi there.", Timestamp: 0.5, Speaker: "B"},
		{Text: "How are you?", Timestamp: 1, Speaker: "B"},
	}

	blocks := Group(segments, DefaultGroupThresholds())

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Speaker != "A" || blocks[0].Text != "Hello" {
		t.Errorf("block 0: got %+v", blocks[0])
	}
	if blocks[1].Speaker != "B" || blocks[1].Text != "Hi there. How are you?" || blocks[1].SegmentCount != 2 {
		t.Errorf("block 1: got %+v", blocks[1])
	}
	if blocks[1].StartTime != 0.5 || blocks[1].EndTime != 1 {
		t.Errorf("block 1 times: got %v-%v", blocks[1].StartTime, blocks[1].EndTime)
	}
}

func TestGroupPauseRules(t *testing.T) {
	th := GroupThresholds{ShortPause: 2, LongPause: 6, MinChars: 20}
	long := strings.Repeat("word ", 10) + "end."

	tests := []struct {
		name     string
		segments []Segment
		want     int
	}{
		{
			name:     "short pause always merges",
			segments: []Segment{{Text: long, Timestamp: 0}, {Text: "Next.", Timestamp: 1.5}},
			want:     1,
		},
		{
			name:     "long pause always splits",
			segments: []Segment{{Text: "Short", Timestamp: 0}, {Text: "next", Timestamp: 7}},
			want:     2,
		},
		{
			name:     "medium pause merges short block",
			segments: []Segment{{Text: "Yes.", Timestamp: 0}, {Text: "Agreed.", Timestamp: 4}},
			want:     1,
		},
		{
			name:     "medium pause merges unfinished sentence",
			segments: []Segment{{Text: long + " and so", Timestamp: 0}, {Text: "Onwards.", Timestamp: 4}},
			want:     1,
		},
		{
			name:     "medium pause splits long finished block",
			segments: []Segment{{Text: long, Timestamp: 0}, {Text: "Onwards.", Timestamp: 4}},
			want:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Group(tt.segments, th)
			if len(got) != tt.want {
				t.Fatalf("expected %d blocks, got %d: %+v", tt.want, len(got), got)
			}
		})
	}
}

func TestGroupKeepsAllText(t *testing.T) {
	segments := []Segment{
		{Text: "One.", Timestamp: 0, Speaker: "A"},
		{Text: "Two.", Timestamp: 10, Speaker: "A"},
		{Text: "Three", Timestamp: 11, Speaker: "B"},
		{Text: "four.", Timestamp: 12, Speaker: "B"},
	}

	blocks := Group(segments, DefaultGroupThresholds())

	total := 0
	var texts []string
	for _, b := range blocks {
		total += b.SegmentCount
		texts = append(texts, b.Text)
	}
	if total != len(segments) {
		t.Fatalf("expected %d segments across blocks, got %d", len(segments), total)
	}
	if got := strings.Join(texts, " "); got != "One. Two. Three four." {
		t.Fatalf("unexpected grouped text %q", got)
	}
}

func TestGroupEmpty(t *testing.T) {
	if blocks := Group(nil, DefaultGroupThresholds()); blocks != nil {
		t.Fatalf("expected nil, got %+v", blocks)
	}
}
