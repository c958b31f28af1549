package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
)

// Writer archives finished meetings as markdown files, one per meeting.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Path(m meeting.Meeting) string {
	date := m.CreatedAt.UTC().Format("2006-01-02")
	return filepath.Join(w.dir, date+"-"+m.ID+".md")
}

// Write renders m and replaces any previous archive of the same meeting.
func (w *Writer) Write(m meeting.Meeting) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.Path(m)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(RenderMarkdown(m)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", path, err)
	}

	return path, nil
}

func RenderMarkdown(m meeting.Meeting) string {
	var b strings.Builder

	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = "Meeting " + m.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_%s_\n\n", m.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))

	if s := m.Summary; s != nil {
		if text := strings.TrimSpace(s.Summary); text != "" {
			fmt.Fprintf(&b, "## Summary\n\n%s\n\n", text)
		}
		if len(s.Topics) > 0 {
			b.WriteString("## Topics\n\n")
			for _, t := range s.Topics {
				if t.Summary != "" {
					fmt.Fprintf(&b, "- **%s**: %s\n", t.Title, t.Summary)
				} else {
					fmt.Fprintf(&b, "- %s\n", t.Title)
				}
			}
			b.WriteString("\n")
		}
		if len(s.Decisions) > 0 {
			b.WriteString("## Decisions\n\n")
			for _, d := range s.Decisions {
				fmt.Fprintf(&b, "- %s\n", d.Text)
			}
			b.WriteString("\n")
		}
		if len(s.Actions) > 0 {
			b.WriteString("## Actions\n\n")
			for _, a := range s.Actions {
				line := "- [ ] " + a.Text
				if a.Assignee != "" {
					line += " (@" + a.Assignee + ")"
				}
				if a.DueDate != "" {
					line += " due " + a.DueDate
				}
				b.WriteString(line + "\n")
			}
			b.WriteString("\n")
		}
		if len(s.OpenQuestions) > 0 {
			b.WriteString("## Open questions\n\n")
			for _, q := range s.OpenQuestions {
				fmt.Fprintf(&b, "- %s\n", q)
			}
			b.WriteString("\n")
		}
		if text := strings.TrimSpace(s.EnhancedNotes); text != "" {
			fmt.Fprintf(&b, "## Notes\n\n%s\n\n", text)
		}
	}

	if len(m.Segments) > 0 {
		b.WriteString("## Transcript\n\n")
		for _, seg := range m.Segments {
			b.WriteString(seg.FormatMarkdown() + "\n\n")
		}
	}

	return b.String()
}
