package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrMalformedOutput = errors.New("malformed model output")

// ParseJSON decodes a model reply into v. Replies are tried as-is, then
// sanitized (code fences, trailing commas, raw control characters inside
// strings), then cut back to the longest prefix that can be closed into a
// balanced object.
func ParseJSON(raw string, v any) error {
	strict := strings.TrimSpace(raw)
	sanitized := sanitizeJSON(strict)

	for _, candidate := range []string{strict, sanitized, recoverTruncated(sanitized)} {
		if candidate == "" || !gjson.Valid(candidate) || !gjson.Parse(candidate).IsObject() {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMalformedOutput, preview(strict, 120))
}

func sanitizeJSON(s string) string {
	s = stripFences(s)
	if start := strings.IndexByte(s, '{'); start > 0 {
		s = s[start:]
	}

	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}

	out := strings.TrimSpace(b.String())
	if end := strings.LastIndexByte(out, '}'); end >= 0 && gjson.Valid(out[:end+1]) {
		return out[:end+1]
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\n', '\r', '\t':
			continue
		}
		return s[i]
	}
	return 0
}

type cutPoint struct {
	end  int
	open string
}

// recoverTruncated closes the longest prefix of s that ends on a complete
// member or element.
func recoverTruncated(s string) string {
	if !strings.HasPrefix(s, "{") {
		return ""
	}

	var cuts []cutPoint
	var open []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			open = append(open, c)
		case '}', ']':
			if len(open) == 0 {
				return ""
			}
			open = open[:len(open)-1]
			cuts = append(cuts, cutPoint{end: i + 1, open: string(open)})
			if len(open) == 0 {
				return s[:i+1]
			}
		case ',':
			cuts = append(cuts, cutPoint{end: i, open: string(open)})
		}
	}

	for i := len(cuts) - 1; i >= 0; i-- {
		candidate := closeBrackets(strings.TrimSpace(s[:cuts[i].end]), cuts[i].open)
		if gjson.Valid(candidate) {
			return candidate
		}
	}
	return ""
}

func closeBrackets(prefix, open string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
