package retrieval

import (
	"strings"
	"testing"

	"github.com/dgallion1/bookrag/internal/book"
)

const goodText = "Consciousness is the quiet ground from which every experience arises. " +
	"When we look closely at attention, we find that awareness itself has no edges or borders. " +
	"Meditation invites us to rest in that open space and notice how thoughts come and go without effort."

func chunkOf(text string) book.Chunk {
	return book.NewChunk("Mind", "Origins", 0, "0", text, func(string) int { return 0 })
}

func ruleNamed(t *testing.T, name string) Rule {
	t.Helper()
	for _, r := range DefaultRules {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no rule named %q", name)
	return Rule{}
}

func TestFilter_AcceptsSubstantialProse(t *testing.T) {
	f := NewFilter()
	if reason := f.Rejection(chunkOf(goodText)); reason != "" {
		t.Fatalf("expected prose to be retrievable, rejected by %s", reason)
	}
}

func TestFilter_Rejections(t *testing.T) {
	trimmed := strings.TrimSuffix(goodText, ".")
	lowerSentence := strings.TrimSpace(strings.Repeat("the mind wanders and returns to rest ", 6)) + "."

	tests := []struct {
		name string
		text string
		want string
	}{
		{"short", "Short text.", "too_short"},
		{"author bio", goodText + " She is a visiting professor at the institute.", "author_bio"},
		{"bio across words", goodText + " He was a professor of ethics at Harvard University for years.", "author_bio"},
		{"page reference", goodText + " See page 12 for details.", "table_of_contents"},
		{"trailing page number", goodText + " 42", "table_of_contents"},
		{"leader dots", goodText + " Contents...", "table_of_contents"},
		{"bare chapter line", goodText + "\nChapter 4:", "table_of_contents"},
		{"dangling conjunction", trimmed + " and the", "dangling_word"},
		{"dangling preposition", trimmed + " with", "dangling_word"},
		{"no capitalised sentences", lowerSentence, "few_sentences"},
		{"too few words", "Awareness rests quietly beneath every passing thought. Attention returns home again and again without effort.", "too_few_words"},
	}
	f := NewFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chunkOf(tt.text)
			if got := f.Rejection(c); got != tt.want {
				t.Errorf("expected rejection %q, got %q", tt.want, got)
			}
			if f.IsRetrievable(c) {
				t.Error("expected chunk to be excluded")
			}
		})
	}
}

func TestFilter_DanglingIsWholeWord(t *testing.T) {
	f := NewFilter()
	text := strings.TrimSuffix(goodText, ".") + " as proof"
	if reason := f.Rejection(chunkOf(text)); reason != "" {
		t.Errorf("expected word ending in 'of' to be kept, rejected by %s", reason)
	}
}

func TestFilter_TableOfContentsLine(t *testing.T) {
	text := "1 ........... 2 ........... 3 ..........."
	f := NewFilter()
	if f.IsRetrievable(chunkOf(text)) {
		t.Fatal("expected leader-dot contents line to be rejected")
	}
	if !ruleNamed(t, "leader_dots").Reject(text) {
		t.Error("expected dot fraction above threshold")
	}
	if !ruleNamed(t, "table_of_contents").Reject(text) {
		t.Error("expected contents pattern match")
	}
}

func TestRule_MostlyNumbers(t *testing.T) {
	r := ruleNamed(t, "mostly_numbers")
	if !r.Reject("Figures 12 14 18 22 and 31 appear in 40") {
		t.Error("expected numeric-heavy text to be rejected")
	}
	if r.Reject(goodText) {
		t.Error("expected prose without digits to pass")
	}
	// Three numbers among six words is exactly half, not above it.
	if r.Reject("1 a 2 b 3 c") {
		t.Error("expected exactly half to pass")
	}
}

func TestRule_LeaderDotsBoundary(t *testing.T) {
	r := ruleNamed(t, "leader_dots")
	if r.Reject("abcdefg...") {
		t.Error("expected 3 dots in 10 chars (exactly 0.3) to pass")
	}
	if !r.Reject("abcdef....") {
		t.Error("expected 4 dots in 10 chars to be rejected")
	}
}

func TestFilter_Idempotent(t *testing.T) {
	f := NewFilter()
	for _, text := range []string{goodText, "Short text.", goodText + " 42"} {
		c := chunkOf(text)
		if f.IsRetrievable(c) != f.IsRetrievable(c) {
			t.Errorf("filter result changed between calls for %q", text)
		}
	}
}

func TestNewFilter_CustomRules(t *testing.T) {
	f := NewFilter(Rule{Name: "no_q", Reject: func(s string) bool { return strings.Contains(s, "q") }})
	if f.Rejection(chunkOf("quiet")) != "no_q" {
		t.Error("expected custom rule to reject")
	}
	if !f.IsRetrievable(chunkOf("short")) {
		t.Error("expected default rules to be replaced")
	}
}
