package record

import (
	"regexp"
	"strings"
)

// Matcher compiles a search keyword into a case-insensitive, unanchored
// pattern. The keyword is matched literally except for '*', which matches
// any sequence of characters. Surrounding whitespace is ignored and an
// empty keyword matches everything, so no keyword is ever invalid.
type Matcher struct {
	re  *regexp.Regexp
	all bool
}

// NewMatcher builds a Matcher for keyword.
func NewMatcher(keyword string) *Matcher {
	k := strings.TrimSpace(keyword)
	if k == "" {
		return &Matcher{all: true}
	}
	pattern := strings.ReplaceAll(regexp.QuoteMeta(k), `\*`, `.*`)
	return &Matcher{re: regexp.MustCompile(`(?i)` + pattern)}
}

// MatchAll reports whether the matcher accepts every input.
func (m *Matcher) MatchAll() bool { return m.all }

// Match reports whether s contains the keyword pattern.
func (m *Matcher) Match(s string) bool {
	if m.all {
		return true
	}
	return m.re.MatchString(s)
}

// MatchRecord reports whether any searchable field of r matches: id, name,
// owner, or one of the ports. Detail is never consulted.
func (m *Matcher) MatchRecord(r Record) bool {
	if m.all {
		return true
	}
	if m.re.MatchString(r.ID) || m.re.MatchString(r.Name) || m.re.MatchString(r.Owner) {
		return true
	}
	for _, p := range r.Ports {
		if m.re.MatchString(p) {
			return true
		}
	}
	return false
}

// Filter returns the records matched by the keyword, preserving order.
func Filter(records []Record, keyword string) []Record {
	m := NewMatcher(keyword)
	if m.MatchAll() {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if m.MatchRecord(r) {
			out = append(out, r)
		}
	}
	return out
}
