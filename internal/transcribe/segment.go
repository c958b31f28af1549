package transcribe

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is the smallest unit of recognized speech. Timestamp is the start
// offset in seconds from the beginning of the recording.
type Segment struct {
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
	Speaker   string  `json:"speaker,omitempty"`
}

// MergeThresholds bound the pause (seconds) under which two adjacent
// segments are joined by Merge.
type MergeThresholds struct {
	Continuation float64 `yaml:"continuation"`
	Unfinished   float64 `yaml:"unfinished"`
	Negligible   float64 `yaml:"negligible"`
}

func DefaultMergeThresholds() MergeThresholds {
	return MergeThresholds{Continuation: 5, Unfinished: 4, Negligible: 1}
}

// Merge recombines fragments the recognizer split in the middle of a
// sentence. The result never has more segments than the input and keeps
// order, timestamps and text.
func Merge(segments []Segment, th MergeThresholds) []Segment {
	if len(segments) == 0 {
		return nil
	}

	merged := make([]Segment, 0, len(segments))
	current := segments[0]
	lastMerged := current.Timestamp

	for _, next := range segments[1:] {
		pause := next.Timestamp - lastMerged

		if shouldMerge(current.Text, next.Text, pause, th) {
			current.Text = joinText(current.Text, next.Text)
			lastMerged = next.Timestamp
			continue
		}

		merged = append(merged, current)
		current = next
		lastMerged = next.Timestamp
	}

	return append(merged, current)
}

func shouldMerge(current, next string, pause float64, th MergeThresholds) bool {
	if startsLowercase(next) && pause < th.Continuation {
		return true
	}
	if !endsSentence(current) && pause < th.Unfinished {
		return true
	}
	return pause < th.Negligible
}

func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func startsLowercase(s string) bool {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(s))
	return r != utf8.RuneError && unicode.IsLower(r)
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// Lines returns the non-empty segment texts in order.
func Lines(segments []Segment) []string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

func (s Segment) FormatMarkdown() string {
	speaker := s.Speaker
	if speaker == "" {
		speaker = "Speaker"
	}
	return fmt.Sprintf("**[%s] %s:** %s", FormatOffset(s.Timestamp), speaker, strings.TrimSpace(s.Text))
}

// FormatOffset renders seconds as HH:MM:SS.
func FormatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
