package suggest

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

const (
	TopicThreshold    = 0.7
	DecisionThreshold = 0.75
	ActionThreshold   = 0.75
)

// Similarity is the normalized edit similarity of a and b after trimming and
// lower-casing, in [0, 1].
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// Merge folds incoming into existing. Retained items keep their relative
// order and new items are appended. Existing entries are deduplicated among
// themselves too, and no two entries of the result are duplicates, so
// Merge(s, Merge(s, s)) == Merge(s, s). Merge never truncates; callers apply
// Truncate.
func Merge(existing, incoming Suggestions) Suggestions {
	var out Suggestions
	for _, group := range []Suggestions{existing, incoming} {
		for _, t := range group.Topics {
			out.Topics = addTopic(out.Topics, t)
		}
		for _, d := range group.Decisions {
			out.Decisions = addDecision(out.Decisions, d)
		}
		for _, a := range group.Actions {
			out.Actions = addAction(out.Actions, a)
		}
	}
	return out
}

func sameTopic(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return na == nb
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return Similarity(a, b) > TopicThreshold
}

// addTopic keeps the longer title of a duplicate pair, in the incumbent's
// position.
func addTopic(topics []Topic, t Topic) []Topic {
	if strings.TrimSpace(t.Title) == "" {
		return topics
	}
	for i, cur := range topics {
		if !sameTopic(cur.Title, t.Title) {
			continue
		}
		if longerTopic(t, cur) {
			topics[i] = t
			return dedupe(topics, func(a, b Topic) bool { return sameTopic(a.Title, b.Title) }, longerTopic)
		}
		return topics
	}
	return append(topics, t)
}

func longerTopic(candidate, incumbent Topic) bool {
	return utf8.RuneCountInString(strings.TrimSpace(candidate.Title)) > utf8.RuneCountInString(strings.TrimSpace(incumbent.Title))
}

func addDecision(decisions []Decision, d Decision) []Decision {
	if strings.TrimSpace(d.Text) == "" {
		return decisions
	}
	for _, cur := range decisions {
		if Similarity(cur.Text, d.Text) > DecisionThreshold {
			return decisions
		}
	}
	return append(decisions, d)
}

// addAction replaces a duplicate incumbent when the candidate adds an
// assignee or a due date the incumbent lacks.
func addAction(actions []Action, a Action) []Action {
	if strings.TrimSpace(a.Text) == "" {
		return actions
	}
	for i, cur := range actions {
		if !sameAction(cur.Text, a.Text) {
			continue
		}
		if moreInformative(a, cur) {
			actions[i] = a
			return dedupe(actions, func(x, y Action) bool { return sameAction(x.Text, y.Text) }, moreInformative)
		}
		return actions
	}
	return append(actions, a)
}

// sameAction also treats an action that extends another one ("prepare the
// deck" / "prepare the deck before Monday") as a duplicate.
func sameAction(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return Similarity(a, b) > ActionThreshold
}

func moreInformative(candidate, incumbent Action) bool {
	addsAssignee := strings.TrimSpace(candidate.Assignee) != "" && strings.TrimSpace(incumbent.Assignee) == ""
	addsDue := strings.TrimSpace(candidate.DueDate) != "" && strings.TrimSpace(incumbent.DueDate) == ""
	return addsAssignee || addsDue
}

// dedupe folds every later duplicate into the earliest entry it matches,
// until no duplicate pair is left. An in-place replacement can make an entry
// match one that was distinct from its predecessor. better decides whether
// the later entry's value takes the earlier position.
func dedupe[T any](items []T, same func(a, b T) bool, better func(candidate, incumbent T) bool) []T {
	for {
		i, j, ok := firstDuplicate(items, same)
		if !ok {
			return items
		}
		if better(items[j], items[i]) {
			items[i] = items[j]
		}
		items = append(items[:j], items[j+1:]...)
	}
}

func firstDuplicate[T any](items []T, same func(a, b T) bool) (int, int, bool) {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if same(items[i], items[j]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
