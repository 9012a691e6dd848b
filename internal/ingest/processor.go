// Package ingest turns source documents into validated chunk records.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/chunker"
	"github.com/dgallion1/bookrag/internal/parser"
	"github.com/dgallion1/bookrag/internal/segmenter"
	"github.com/dgallion1/bookrag/internal/tokenizer"
)

// NotFoundError is returned when a source document does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book file not found: %s", e.Path)
}

// Config controls document processing.
type Config struct {
	ChunkSize            int // Characters per window.
	ChunkOverlap         int // Characters shared by consecutive windows.
	MaxChunkTokens       int // Hard ceiling; larger chunks are re-split once at half size.
	PDFFallbackPdftotext bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		MaxChunkTokens: 8000,
	}
}

func (c Config) chunking() chunker.Config {
	return chunker.Config{Size: c.ChunkSize, Overlap: c.ChunkOverlap}
}

func (c Config) resplit() chunker.Config {
	return chunker.Config{Size: c.ChunkSize / 2, Overlap: c.ChunkOverlap}
}

// Validate checks both the normal and the half-size re-split windows.
func (c Config) Validate() error {
	if err := c.chunking().Validate(); err != nil {
		return err
	}
	if err := c.resplit().Validate(); err != nil {
		return fmt.Errorf("re-split window: %w", err)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("max chunk tokens must be positive, got %d", c.MaxChunkTokens)
	}
	return nil
}

// Processor runs segment, chunk and re-split for one document at a time.
// It holds no mutable state and is safe for concurrent use.
type Processor struct {
	cfg Config
	tok tokenizer.Counter
	seg *segmenter.Segmenter
	log *slog.Logger
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg Config, tok tokenizer.Counter, log *slog.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{
		cfg: cfg,
		tok: tok,
		seg: segmenter.New(),
		log: log,
	}, nil
}

// Config returns the processing configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// ProcessText builds chunks for a document's text. Chunks come back in
// document order: chapter, then chunk, then sub-chunk.
func (p *Processor) ProcessText(title, text string) ([]book.Chunk, error) {
	sections := p.seg.Segment(text)
	if len(sections) == 0 {
		sections = []book.Section{{Title: book.FullTextTitle, Content: text}}
	}

	var chunks []book.Chunk
	for chapterIdx, section := range sections {
		spans, err := p.cfg.chunking().Split(section.Content)
		if err != nil {
			return nil, fmt.Errorf("chunk chapter %d: %w", chapterIdx, err)
		}
		for chunkIdx, span := range spans {
			if n := p.tok.Count(span); n <= p.cfg.MaxChunkTokens {
				chunks = append(chunks, book.NewChunk(title, section.Title, chapterIdx, book.PlainIndex(chunkIdx), span, p.counted(span, n)))
				continue
			}
			// Sub-chunks still over the ceiling are kept here and dropped by Validate.
			subs, err := p.cfg.resplit().Split(span)
			if err != nil {
				return nil, fmt.Errorf("re-split chapter %d chunk %d: %w", chapterIdx, chunkIdx, err)
			}
			for subIdx, sub := range subs {
				chunks = append(chunks, book.NewChunk(title, section.Title, chapterIdx, book.SubIndex(chunkIdx, subIdx), sub, p.tok.Count))
			}
		}
	}
	return chunks, nil
}

// counted returns a token counter that reuses n for span, which the chunker
// has already trimmed, and counts any other text.
func (p *Processor) counted(span string, n int) func(string) int {
	return func(text string) int {
		if text == span {
			return n
		}
		return p.tok.Count(text)
	}
}

// ProcessFile extracts, segments and chunks the document at path. A missing
// file yields *NotFoundError. A PDF that cannot be read is logged and treated
// as an empty document.
func (p *Processor) ProcessFile(path string) ([]book.Chunk, error) {
	text, err := p.ExtractFile(path)
	if err != nil {
		return nil, err
	}
	return p.ProcessText(BookTitle(path), text)
}

// ExtractFile returns the plain text of the document at path.
func (p *Processor) ExtractFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: path}
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	prs, err := parser.ForFile(path, parser.Options{PDFFallbackPdftotext: p.cfg.PDFFallbackPdftotext})
	if err != nil {
		return "", err
	}

	if pdf, ok := prs.(*parser.PDFParser); ok {
		text, err := pdf.ParseFile(path)
		if err != nil {
			p.log.Warn("pdf extraction failed", "path", path, "error", err)
			return "", nil
		}
		return text, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	text, err := prs.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return text, nil
}

// ExtractReader is ExtractFile for uploaded content named filename.
func (p *Processor) ExtractReader(filename string, r io.Reader) (string, error) {
	prs, err := parser.ForFile(filename, parser.Options{PDFFallbackPdftotext: p.cfg.PDFFallbackPdftotext})
	if err != nil {
		return "", err
	}
	text, err := prs.Parse(r)
	if err != nil {
		if parser.IsPDF(filename) {
			p.log.Warn("pdf extraction failed", "filename", filename, "error", err)
			return "", nil
		}
		return "", fmt.Errorf("parse %s: %w", filename, err)
	}
	return text, nil
}

// BookTitle derives a book title from a file path: the base name without a
// supported document extension.
func BookTitle(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if parser.IsSupportedExtension(base) {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
