package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FullTextTitle is the chapter title used when no headings were detected.
const FullTextTitle = "Full Text"

// Section is a document subdivision detected by heading heuristics.
type Section struct {
	Title   string // Heading text with the marker removed
	Content string // Newline-joined body lines
}

// ChunkIndex is the position of a chunk within its chapter: "3" for a plain
// chunk, "3_1" for the second sub-chunk of an oversized chunk 3.
type ChunkIndex string

// PlainIndex formats a top-level chunk position.
func PlainIndex(i int) ChunkIndex {
	return ChunkIndex(strconv.Itoa(i))
}

// SubIndex formats the position of a sub-chunk produced by re-splitting chunk i.
func SubIndex(i, sub int) ChunkIndex {
	return ChunkIndex(fmt.Sprintf("%d_%d", i, sub))
}

// UnmarshalJSON accepts both the string form and a bare JSON number, which
// older stores used for plain indexes.
func (c *ChunkIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChunkIndex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chunk_index: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("chunk_index %s is not an integer", n)
	}
	*c = ChunkIndex(n.String())
	return nil
}

// Chunk is the atomic retrievable unit.
type Chunk struct {
	BookTitle    string     `json:"book_title"`
	Chapter      string     `json:"chapter"`
	ChapterIndex int        `json:"chapter_index"`
	ChunkIndex   ChunkIndex `json:"chunk_index"`
	Text         string     `json:"text"`
	WordCount    int        `json:"word_count"`
	TokenCount   int        `json:"token_count"`
}

// NewChunk builds a Chunk, trimming text and computing both counts from it.
func NewChunk(bookTitle, chapter string, chapterIndex int, idx ChunkIndex, text string, countTokens func(string) int) Chunk {
	text = strings.TrimSpace(text)
	return Chunk{
		BookTitle:    bookTitle,
		Chapter:      chapter,
		ChapterIndex: chapterIndex,
		ChunkIndex:   idx,
		Text:         text,
		WordCount:    WordCount(text),
		TokenCount:   countTokens(text),
	}
}

// DatapointID is the identifier used by the vector index service.
func (c Chunk) DatapointID() string {
	return fmt.Sprintf("%s_%d_%s", c.BookTitle, c.ChapterIndex, c.ChunkIndex)
}

// WordCount counts whitespace-delimited words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
