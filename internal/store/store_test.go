package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgallion1/bookrag/internal/book"
)

func chunk(title string, chapter, idx int, words int) book.Chunk {
	return book.Chunk{
		BookTitle:    title,
		Chapter:      "Chapter",
		ChapterIndex: chapter,
		ChunkIndex:   book.PlainIndex(idx),
		Text:         "text of " + title,
		WordCount:    words,
	}
}

func titles(chunks []book.Chunk) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, c.BookTitle)
	}
	return out
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 2)
	chunks := []book.Chunk{chunk("B", 0, 0, 20), chunk("A", 1, 0, 30)}
	vectors := [][]float32{{1, 0}, {0, 1}}
	if err := s.Replace(chunks, vectors, map[string]string{"A": "h-a"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gotChunks, gotVectors := loaded.Snapshot()
	if !reflect.DeepEqual(gotChunks, chunks) {
		t.Errorf("chunks differ after round trip: %+v", gotChunks)
	}
	if !reflect.DeepEqual(gotVectors, vectors) {
		t.Errorf("vectors differ after round trip: %v", gotVectors)
	}

	meta := loaded.Metadata()
	if meta.TotalChunks != 2 || meta.TotalWords != 50 || meta.EmbeddingDimensions != 2 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if !reflect.DeepEqual(meta.BooksProcessed, []string{"A", "B"}) {
		t.Errorf("expected sorted books, got %v", meta.BooksProcessed)
	}
	if title, ok := loaded.BookForHash("h-a"); !ok || title != "A" {
		t.Errorf("expected hash lookup to find A, got %q %v", title, ok)
	}
}

func TestStore_OpenMissingDirIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nothing"), 768)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 0 || s.HasVectors() {
		t.Error("expected empty store without vectors")
	}
	meta := s.Metadata()
	if meta.BooksProcessed == nil || len(meta.BooksProcessed) != 0 {
		t.Errorf("expected empty non-nil book list, got %v", meta.BooksProcessed)
	}
}

func TestStore_LoadNumericChunkIndex(t *testing.T) {
	dir := t.TempDir()
	data := `[{"book_title":"Old","chapter":"One","chapter_index":0,"chunk_index":4,"text":"legacy","word_count":1,"token_count":1}]`
	if err := os.WriteFile(filepath.Join(dir, ChunksFile), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(dir, 768)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Chunks()[0].ChunkIndex; got != "4" {
		t.Errorf("expected chunk index %q, got %q", "4", got)
	}
}

func TestStore_LoadMisalignedVectors(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ChunksFile), []byte(`[]`), 0o644)
	os.WriteFile(filepath.Join(dir, EmbeddingsFile), []byte(`[[1,2]]`), 0o644)
	if _, err := Open(dir, 2); err == nil {
		t.Error("expected error for vectors without chunks")
	}
}

func TestStore_ReplaceBook(t *testing.T) {
	s := New(t.TempDir(), 2)
	s.Replace([]book.Chunk{chunk("A", 0, 0, 10), chunk("B", 0, 0, 10), chunk("A", 0, 1, 10)}, nil, nil)

	if err := s.ReplaceBook("A", "h2", []book.Chunk{chunk("A", 0, 0, 15)}, nil); err != nil {
		t.Fatalf("ReplaceBook: %v", err)
	}
	if got := titles(s.Chunks()); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("unexpected order %v", got)
	}
	if s.HasVectors() {
		t.Error("expected store to stay without vectors")
	}
	if s.Metadata().TotalWords != 25 {
		t.Errorf("expected 25 words, got %d", s.Metadata().TotalWords)
	}
}

func TestStore_ReplaceBookPadsVectors(t *testing.T) {
	s := New(t.TempDir(), 3)
	s.Replace([]book.Chunk{chunk("A", 0, 0, 10)}, nil, nil)

	if err := s.ReplaceBook("B", "hb", []book.Chunk{chunk("B", 0, 0, 10)}, [][]float32{{1, 2, 3}}); err != nil {
		t.Fatalf("ReplaceBook: %v", err)
	}
	_, vectors := s.Snapshot()
	want := [][]float32{{0, 0, 0}, {1, 2, 3}}
	if !reflect.DeepEqual(vectors, want) {
		t.Errorf("expected zero-padded vectors %v, got %v", want, vectors)
	}

	if err := s.ReplaceBook("C", "", []book.Chunk{chunk("C", 0, 0, 10)}, nil); err != nil {
		t.Fatalf("ReplaceBook: %v", err)
	}
	_, vectors = s.Snapshot()
	if len(vectors) != 3 || !reflect.DeepEqual(vectors[2], []float32{0, 0, 0}) {
		t.Errorf("expected new chunk without vectors to get a zero vector, got %v", vectors)
	}
}

func TestStore_ReplaceBookRejectsStoredHash(t *testing.T) {
	s := New(t.TempDir(), 2)
	if err := s.ReplaceBook("A", "h1", []book.Chunk{chunk("A", 0, 0, 10)}, nil); err != nil {
		t.Fatalf("ReplaceBook: %v", err)
	}

	for _, title := range []string{"B", "A"} {
		err := s.ReplaceBook(title, "h1", []book.Chunk{chunk(title, 0, 0, 20)}, nil)
		var dup *DuplicateError
		if !errors.As(err, &dup) || dup.Book != "A" {
			t.Fatalf("%s: expected DuplicateError naming A, got %v", title, err)
		}
	}
	if got := titles(s.Chunks()); !reflect.DeepEqual(got, []string{"A"}) || s.Metadata().TotalWords != 10 {
		t.Errorf("expected store unchanged, got %v", got)
	}

	// Clearing a book is never a duplicate.
	if err := s.ReplaceBook("A", "", nil, nil); err != nil {
		t.Fatalf("ReplaceBook: %v", err)
	}
	if _, ok := s.BookForHash("h1"); ok {
		t.Error("expected hash released with the book")
	}
}

func TestStore_ReplaceRejectsMisalignedVectors(t *testing.T) {
	s := New(t.TempDir(), 2)
	if err := s.Replace([]book.Chunk{chunk("A", 0, 0, 1)}, [][]float32{}, nil); err == nil {
		t.Error("expected error")
	}
	if err := s.ReplaceBook("A", "", nil, [][]float32{{1, 1}}); err == nil {
		t.Error("expected error")
	}
}

func TestStore_SaveRemovesStaleEmbeddings(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 1)
	s.Replace([]book.Chunk{chunk("A", 0, 0, 1)}, [][]float32{{1}}, nil)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	s.Replace([]book.Chunk{chunk("A", 0, 0, 1)}, nil, nil)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, EmbeddingsFile)); !os.IsNotExist(err) {
		t.Errorf("expected embeddings file to be removed, stat err = %v", err)
	}
}

func TestStore_ByDatapointID(t *testing.T) {
	s := New(t.TempDir(), 0)
	c := chunk("Mind", 2, 5, 10)
	s.Replace([]book.Chunk{c}, nil, nil)
	got, ok := s.ByDatapointID("Mind_2_5")
	if !ok || got.ChunkIndex != "5" {
		t.Errorf("expected to find chunk, got %+v %v", got, ok)
	}
	if _, ok := s.ByDatapointID("Mind_2_6"); ok {
		t.Error("expected miss")
	}
}
