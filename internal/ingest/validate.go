package ingest

import (
	"strings"

	"github.com/dgallion1/bookrag/internal/book"
)

// MinWords is the smallest word count a stored chunk may have.
const MinWords = 10

// Validate returns the chunks that may be persisted, in their original order.
// A chunk is dropped when it has fewer than MinWords words, more than
// maxTokens tokens, or an empty book title, chapter or text.
func Validate(chunks []book.Chunk, maxTokens int) []book.Chunk {
	valid := make([]book.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if reason := rejectReason(c, maxTokens); reason != "" {
			continue
		}
		valid = append(valid, c)
	}
	return valid
}

func rejectReason(c book.Chunk, maxTokens int) string {
	switch {
	case c.WordCount < MinWords:
		return "too_few_words"
	case c.TokenCount > maxTokens:
		return "too_many_tokens"
	case strings.TrimSpace(c.BookTitle) == "":
		return "missing_book_title"
	case strings.TrimSpace(c.Chapter) == "":
		return "missing_chapter"
	case strings.TrimSpace(c.Text) == "":
		return "missing_text"
	}
	return ""
}

// Validate filters chunks against the processor's token ceiling and logs
// how many were dropped for each reason.
func (p *Processor) Validate(chunks []book.Chunk) []book.Chunk {
	valid := make([]book.Chunk, 0, len(chunks))
	dropped := map[string]int{}
	for _, c := range chunks {
		if reason := rejectReason(c, p.cfg.MaxChunkTokens); reason != "" {
			dropped[reason]++
			continue
		}
		valid = append(valid, c)
	}
	if len(dropped) > 0 {
		p.log.Debug("chunks dropped by validation", "kept", len(valid), "dropped", dropped)
	}
	return valid
}
