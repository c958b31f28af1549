package transcribe

import "unicode/utf8"

// Block is a display-oriented run of segments. It is derived on demand and
// never persisted.
type Block struct {
	Text         string  `json:"text"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Speaker      string  `json:"speaker,omitempty"`
	SegmentCount int     `json:"segment_count"`
}

type GroupThresholds struct {
	ShortPause float64 `yaml:"short_pause"`
	LongPause  float64 `yaml:"long_pause"`
	MinChars   int     `yaml:"min_chars"`
}

func DefaultGroupThresholds() GroupThresholds {
	return GroupThresholds{ShortPause: 2, LongPause: 6, MinChars: 120}
}

// Group folds consecutive segments into paragraph-like blocks. A speaker
// change always opens a new block.
func Group(segments []Segment, th GroupThresholds) []Block {
	if len(segments) == 0 {
		return nil
	}

	var blocks []Block
	current := newBlock(segments[0])
	prev := segments[0]

	for _, seg := range segments[1:] {
		if groupWith(current, prev, seg, th) {
			current.Text = joinText(current.Text, seg.Text)
			current.EndTime = seg.Timestamp
			current.SegmentCount++
		} else {
			blocks = append(blocks, current)
			current = newBlock(seg)
		}
		prev = seg
	}

	return append(blocks, current)
}

func groupWith(current Block, prev, next Segment, th GroupThresholds) bool {
	if next.Speaker != prev.Speaker {
		return false
	}

	pause := next.Timestamp - prev.Timestamp
	switch {
	case pause < th.ShortPause:
		return true
	case pause > th.LongPause:
		return false
	}

	return utf8.RuneCountInString(current.Text) < th.MinChars || !endsSentence(prev.Text)
}

func newBlock(seg Segment) Block {
	return Block{
		Text:         joinText("", seg.Text),
		StartTime:    seg.Timestamp,
		EndTime:      seg.Timestamp,
		Speaker:      seg.Speaker,
		SegmentCount: 1,
	}
}
