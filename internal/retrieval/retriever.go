// Package retrieval ranks stored chunks against a query.
package retrieval

import (
	"fmt"
	"math"
	"sort"

	"github.com/dgallion1/bookrag/internal/book"
)

// Result is a ranked chunk. Score is the ranking key; Lexical is the
// unboosted word-overlap score, or the raw cosine for vector retrieval.
type Result struct {
	Chunk   book.Chunk `json:"chunk"`
	Score   float64    `json:"score"`
	Lexical float64    `json:"lexical"`
}

// Retriever applies the quality filter, scores the survivors and keeps the
// best topK.
type Retriever struct {
	filter *Filter
}

// New returns a Retriever using f, or the default filter when f is nil.
func New(f *Filter) *Retriever {
	if f == nil {
		f = NewFilter()
	}
	return &Retriever{filter: f}
}

// Filter returns the quality filter in use.
func (r *Retriever) Filter() *Filter {
	return r.filter
}

// Retrieve ranks chunks by boosted lexical score, highest first. Exact ties
// keep store order. At most topK results are returned; topK <= 0 returns none.
func (r *Retriever) Retrieve(query string, chunks []book.Chunk, topK int) []Result {
	if topK <= 0 {
		return nil
	}
	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		if !r.filter.IsRetrievable(c) {
			continue
		}
		lex := Score(query, c.Text)
		results = append(results, Result{
			Chunk:   c,
			Score:   lex + LengthBoost(c.WordCount),
			Lexical: lex,
		})
	}
	return top(results, topK)
}

// RetrieveByVector ranks chunks by cosine similarity between query and the
// index-aligned vectors. The same quality filter applies. Zero vectors score 0.
func (r *Retriever) RetrieveByVector(query []float32, chunks []book.Chunk, vectors [][]float32, topK int) ([]Result, error) {
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("vector count %d does not match chunk count %d", len(vectors), len(chunks))
	}
	if topK <= 0 {
		return nil, nil
	}
	results := make([]Result, 0, len(chunks))
	for i, c := range chunks {
		if !r.filter.IsRetrievable(c) {
			continue
		}
		if len(vectors[i]) != len(query) {
			return nil, fmt.Errorf("vector %d has dimension %d, query has %d", i, len(vectors[i]), len(query))
		}
		sim := CosineSimilarity(query, vectors[i])
		results = append(results, Result{Chunk: c, Score: sim, Lexical: sim})
	}
	return top(results, topK), nil
}

func top(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// HasOverlap reports whether any result shares at least one word with the
// query. Callers treat a result set without overlap as "nothing relevant".
func HasOverlap(results []Result) bool {
	for _, r := range results {
		if r.Lexical > 0 {
			return true
		}
	}
	return false
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors give 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
