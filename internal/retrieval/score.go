package retrieval

import (
	"math"
	"regexp"
	"strings"
)

// MaxLengthBoost caps the bonus given to longer chunks.
const MaxLengthBoost = 0.3

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func wordSet(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Score is the Jaccard similarity of the lower-cased word sets of query and
// text. It is 0 when either set is empty.
func Score(query, text string) float64 {
	q, t := wordSet(query), wordSet(text)
	if len(q) == 0 || len(t) == 0 {
		return 0
	}
	inter := 0
	for w := range q {
		if _, ok := t[w]; ok {
			inter++
		}
	}
	union := len(q) + len(t) - inter
	return float64(inter) / float64(union)
}

// LengthBoost is wordCount/100, capped at MaxLengthBoost.
func LengthBoost(wordCount int) float64 {
	return math.Min(float64(wordCount)/100, MaxLengthBoost)
}

// BoostedScore adds LengthBoost to Score. The result is not clamped and may
// exceed 1.
func BoostedScore(query, text string, wordCount int) float64 {
	return Score(query, text) + LengthBoost(wordCount)
}
