package retrieval

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/bookrag/internal/book"
)

// Rule is one retrieval-time quality heuristic. Reject reports whether the
// trimmed chunk text should be excluded from results.
type Rule struct {
	Name   string
	Reject func(text string) bool
}

const (
	minChars          = 80
	maxDotFraction    = 0.3
	maxNumberFraction = 0.5
	minSentenceChars  = 20
	minSentences      = 2
	minWords          = 30
)

var (
	numberRun     = regexp.MustCompile(`\d+`)
	sentenceSplit = regexp.MustCompile(`[.!?]+`)

	bioPatterns = compileAll(
		`professor of.*at.*university`,
		`editor-in-chief`,
		`he lives in`,
		`she lives in`,
		`phd.*university`,
		`author of.*books?`,
		`co-director of`,
		`director of.*centre`,
		`visiting professor`,
	)

	tocPatterns = compileAll(
		`\.{3,}`,
		`\d+\s*$`,
		`^[a-z\s]+\d+$`,
		`chapter\s+\d+[:\s]*$`,
		`page\s+\d+`,
	)

	danglingWords = map[string]bool{
		"of": true, "the": true, "and": true, "or": true, "in": true,
		"at": true, "to": true, "for": true, "with": true, "by": true,
	}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func matchesAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// DefaultRules reject boilerplate such as tables of contents, page
// references, author biographies and sentence fragments.
var DefaultRules = []Rule{
	{Name: "too_short", Reject: func(text string) bool {
		return utf8.RuneCountInString(text) < minChars
	}},
	{Name: "leader_dots", Reject: func(text string) bool {
		return float64(strings.Count(text, ".")) > float64(utf8.RuneCountInString(text))*maxDotFraction
	}},
	{Name: "mostly_numbers", Reject: func(text string) bool {
		numbers := len(numberRun.FindAllStringIndex(text, -1))
		return float64(numbers) > float64(len(strings.Fields(text)))*maxNumberFraction
	}},
	{Name: "author_bio", Reject: func(text string) bool {
		return matchesAny(bioPatterns, text)
	}},
	{Name: "table_of_contents", Reject: func(text string) bool {
		return matchesAny(tocPatterns, text)
	}},
	{Name: "dangling_word", Reject: func(text string) bool {
		fields := strings.Fields(text)
		return len(fields) > 0 && danglingWords[strings.ToLower(fields[len(fields)-1])]
	}},
	{Name: "few_sentences", Reject: func(text string) bool {
		return completeSentences(text) < minSentences
	}},
	{Name: "too_few_words", Reject: func(text string) bool {
		return len(strings.Fields(text)) < minWords
	}},
}

// completeSentences counts punctuation-delimited spans longer than
// minSentenceChars that start with an upper-case letter.
func completeSentences(text string) int {
	n := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) <= minSentenceChars {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(s); unicode.IsUpper(r) {
			n++
		}
	}
	return n
}

// Filter is an OR of rejection rules.
type Filter struct {
	rules []Rule
}

// NewFilter returns a Filter over rules, or DefaultRules when none are given.
func NewFilter(rules ...Rule) *Filter {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Filter{rules: rules}
}

// Rejection returns the name of the first rule that rejects c, or "".
func (f *Filter) Rejection(c book.Chunk) string {
	text := strings.TrimSpace(c.Text)
	for _, r := range f.rules {
		if r.Reject(text) {
			return r.Name
		}
	}
	return ""
}

// IsRetrievable reports whether c passes every rule. It depends only on the
// chunk text.
func (f *Filter) IsRetrievable(c book.Chunk) bool {
	return f.Rejection(c) == ""
}
