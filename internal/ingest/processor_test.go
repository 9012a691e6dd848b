package ingest

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/chunker"
	"github.com/dgallion1/bookrag/internal/tokenizer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// runeCounter counts one token per character so ceilings are easy to reason about.
var runeCounter = tokenizer.CounterFunc(utf8.RuneCountInString)

func newTestProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg, runeCounter, discard)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

func paragraph(words int) string {
	return strings.TrimSpace(strings.Repeat("The mind observes itself quietly. ", words/5))
}

func TestProcessText_Chapters(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())
	text := "Chapter 1: Origins\n" + paragraph(50) + "\n\nChapter 2: Growth\n" + paragraph(50)

	chunks, err := p.ProcessText("Mind", text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, want := range []string{"Origins", "Growth"} {
		c := chunks[i]
		if c.Chapter != want || c.ChapterIndex != i || c.ChunkIndex != "0" {
			t.Errorf("chunk %d: unexpected position %q/%d/%q", i, c.Chapter, c.ChapterIndex, c.ChunkIndex)
		}
		if c.BookTitle != "Mind" {
			t.Errorf("chunk %d: expected book title Mind, got %q", i, c.BookTitle)
		}
		if c.WordCount != book.WordCount(c.Text) || c.TokenCount != utf8.RuneCountInString(c.Text) {
			t.Errorf("chunk %d: counts not derived from text", i)
		}
	}
}

func TestProcessText_FullTextFallback(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())
	chunks, err := p.ProcessText("Essay", paragraph(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Chapter != book.FullTextTitle || c.ChapterIndex != 0 {
			t.Errorf("chunk %d: expected Full Text chapter 0, got %q/%d", i, c.Chapter, c.ChapterIndex)
		}
	}
}

func TestProcessText_EmptyDocument(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())
	chunks, err := p.ProcessText("Blank", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestProcessText_OversizedChunkResplit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChunkTokens = 600
	p := newTestProcessor(t, cfg)

	chunks, err := p.ProcessText("Dense", strings.Repeat("lorem ", 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	seen := map[book.ChunkIndex]bool{}
	for _, c := range chunks {
		if c.TokenCount > 600 {
			t.Errorf("sub-chunk %s has %d tokens", c.ChunkIndex, c.TokenCount)
		}
		if seen[c.ChunkIndex] {
			t.Errorf("duplicate chunk index %q", c.ChunkIndex)
		}
		seen[c.ChunkIndex] = true
	}
	if chunks[0].ChunkIndex != "0_0" || chunks[1].ChunkIndex != "0_1" {
		t.Errorf("expected sub-chunks 0_0, 0_1 first, got %q, %q", chunks[0].ChunkIndex, chunks[1].ChunkIndex)
	}
}

func TestProcessText_ResplitStillOversizedKeptThenDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChunkTokens = 300 // Below the 500-character re-split window.
	p := newTestProcessor(t, cfg)

	chunks, err := p.ProcessText("Dense", strings.Repeat("lorem ", 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oversized := 0
	for _, c := range chunks {
		if c.TokenCount <= cfg.MaxChunkTokens {
			continue
		}
		oversized++
		if !strings.Contains(string(c.ChunkIndex), "_") {
			t.Errorf("expected compound index for re-split chunk, got %q", c.ChunkIndex)
		}
	}
	if oversized == 0 {
		t.Fatal("expected sub-chunks over the ceiling to be emitted as-is")
	}

	valid := p.Validate(chunks)
	if len(valid) != len(chunks)-oversized {
		t.Errorf("expected %d chunks after validation, got %d", len(chunks)-oversized, len(valid))
	}
	for _, c := range valid {
		if c.TokenCount > cfg.MaxChunkTokens {
			t.Errorf("chunk %s with %d tokens survived validation", c.ChunkIndex, c.TokenCount)
		}
	}
}

func TestProcessText_CountsEachChunkOnce(t *testing.T) {
	calls := map[string]int{}
	counter := tokenizer.CounterFunc(func(s string) int {
		calls[s]++
		return utf8.RuneCountInString(s)
	})
	p, err := NewProcessor(DefaultConfig(), counter, discard)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	chunks, err := p.ProcessText("Mind", "Chapter 1: Origins\n"+paragraph(300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if n := calls[c.Text]; n != 1 {
			t.Errorf("chunk %s: tokenised %d times", c.ChunkIndex, n)
		}
		if c.TokenCount != utf8.RuneCountInString(c.Text) {
			t.Errorf("chunk %s: token count not derived from text", c.ChunkIndex)
		}
	}
}

func TestNewProcessor_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"overlap equals size", Config{ChunkSize: 200, ChunkOverlap: 200, MaxChunkTokens: 10}},
		{"half size below overlap", Config{ChunkSize: 300, ChunkOverlap: 200, MaxChunkTokens: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.cfg, runeCounter, discard)
			if !errors.Is(err, chunker.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := NewProcessor(Config{ChunkSize: 1000, ChunkOverlap: 200}, runeCounter, discard); err == nil {
		t.Error("expected error for zero token ceiling")
	}
}

func TestProcessFile_NotFound(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())
	_, err := p.ProcessFile(filepath.Join(t.TempDir(), "missing.txt"))

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !strings.HasSuffix(nf.Path, "missing.txt") {
		t.Errorf("unexpected path %q", nf.Path)
	}
}

func TestProcessFile_Text(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "The Quiet Mind.txt")
	content := "# Stillness\n" + paragraph(60)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestProcessor(t, DefaultConfig())
	chunks, err := p.ProcessFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].BookTitle != "The Quiet Mind" || chunks[0].Chapter != "Stillness" {
		t.Errorf("unexpected chunk metadata %+v", chunks[0])
	}
}

func TestProcessFile_BrokenPDFIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not really a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestProcessor(t, DefaultConfig())
	chunks, err := p.ProcessFile(path)
	if err != nil {
		t.Fatalf("expected extraction failure to degrade, got %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestExtractReader_Markdown(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())
	text, err := p.ExtractReader("notes.md", strings.NewReader("## Part\n\nBody."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "# Part\n\nBody." {
		t.Errorf("unexpected text %q", text)
	}
	if _, err := p.ExtractReader("sheet.xls", strings.NewReader("x")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestBookTitle(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"books/Conscious Mind.txt", "Conscious Mind"},
		{"/data/a.b.pdf", "a.b"},
		{"notes.MD", "notes"},
		{"report.docx", "report"},
		{"archive.zip", "archive.zip"},
	}
	for _, tt := range tests {
		if got := BookTitle(tt.path); got != tt.want {
			t.Errorf("BookTitle(%q): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}
