// Package segmenter splits raw document text into chapter sections using
// line-level heading heuristics.
package segmenter

import (
	"regexp"
	"strings"

	"github.com/dgallion1/bookrag/internal/book"
)

// Rule recognises one heading style. Title returns the heading title and
// true when the trimmed line is a heading of this style.
type Rule struct {
	Name  string
	Title func(line string) (string, bool)
}

// PatternRule builds a Rule whose title is the first capture group of re.
func PatternRule(name string, re *regexp.Regexp) Rule {
	return Rule{
		Name: name,
		Title: func(line string) (string, bool) {
			m := re.FindStringSubmatch(line)
			if m == nil {
				return "", false
			}
			return strings.TrimSpace(m[1]), true
		},
	}
}

// DefaultRules are tried in order; the first match wins.
var DefaultRules = []Rule{
	PatternRule("chapter", regexp.MustCompile(`(?i)^chapter\s+\d+[:\s]*(.+)$`)),
	PatternRule("numbered", regexp.MustCompile(`^\d+[.\s]*(.+)$`)),
	PatternRule("markdown", regexp.MustCompile(`^#+\s*(.+)$`)),
	PatternRule("bold", regexp.MustCompile(`^\*\*(.+)\*\*$`)),
}

// Segmenter holds an ordered heading rule set.
type Segmenter struct {
	rules []Rule
}

// New returns a Segmenter using rules, or DefaultRules when none are given.
func New(rules ...Rule) *Segmenter {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Segmenter{rules: rules}
}

// Segment splits text into sections. Blank lines are dropped and body lines
// keep their trimmed form. Body text that appears before the first heading
// belongs to no section and is discarded. A document with no headings yields
// no sections; callers fall back to a single book.FullTextTitle section.
func (s *Segmenter) Segment(text string) []book.Section {
	var sections []book.Section
	var title string
	var body []string
	open := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if heading, ok := s.heading(line); ok {
			if open {
				sections = append(sections, book.Section{Title: title, Content: strings.Join(body, "\n")})
			}
			title, body, open = heading, nil, true
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	if open {
		sections = append(sections, book.Section{Title: title, Content: strings.Join(body, "\n")})
	}
	return sections
}

func (s *Segmenter) heading(line string) (string, bool) {
	for _, r := range s.rules {
		if t, ok := r.Title(line); ok && t != "" {
			return t, true
		}
	}
	return "", false
}

// Segment runs the default rule set.
func Segment(text string) []book.Section {
	return defaultSegmenter.Segment(text)
}

var defaultSegmenter = New()
