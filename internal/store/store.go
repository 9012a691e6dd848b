// Package store persists the chunk store: chunks.json (ordered chunk
// records), embeddings.json (one vector per chunk, same order) and
// metadata.json.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/bookrag/internal/book"
)

const (
	ChunksFile     = "chunks.json"
	EmbeddingsFile = "embeddings.json"
	MetadataFile   = "metadata.json"
)

// Metadata summarises the store contents.
type Metadata struct {
	TotalChunks         int               `json:"total_chunks"`
	EmbeddingDimensions int               `json:"embedding_dimensions"`
	BooksProcessed      []string          `json:"books_processed"`
	TotalWords          int               `json:"total_words"`
	BookHashes          map[string]string `json:"book_hashes,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Store holds chunks and, optionally, their index-aligned vectors. It is
// safe for concurrent use; readers get copies.
type Store struct {
	mu      sync.RWMutex
	saveMu  sync.Mutex // Serialises writers of the temporary files.
	dir     string
	dims    int
	chunks  []book.Chunk
	vectors [][]float32 // nil, or one per chunk
	hashes  map[string]string
	updated time.Time
}

// New returns an empty store rooted at dir for vectors of dims dimensions.
func New(dir string, dims int) *Store {
	return &Store{
		dir:    dir,
		dims:   dims,
		hashes: make(map[string]string),
	}
}

// Open loads the store in dir. Missing files leave the store empty.
func Open(dir string, dims int) (*Store, error) {
	s := New(dir, dims)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory the store saves to.
func (s *Store) Dir() string {
	return s.dir
}

// Load replaces the in-memory state with the files in the store directory.
func (s *Store) Load() error {
	var chunks []book.Chunk
	if _, err := readJSON(filepath.Join(s.dir, ChunksFile), &chunks); err != nil {
		return err
	}

	var vectors [][]float32
	found, err := readJSON(filepath.Join(s.dir, EmbeddingsFile), &vectors)
	if err != nil {
		return err
	}
	if found && len(vectors) != len(chunks) {
		return fmt.Errorf("%s has %d vectors for %d chunks", EmbeddingsFile, len(vectors), len(chunks))
	}

	var meta Metadata
	if _, err := readJSON(filepath.Join(s.dir, MetadataFile), &meta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = chunks
	s.vectors = vectors
	s.hashes = make(map[string]string, len(meta.BookHashes))
	for k, v := range meta.BookHashes {
		s.hashes[k] = v
	}
	if len(vectors) > 0 {
		s.dims = len(vectors[0])
	}
	s.updated = meta.UpdatedAt
	return nil
}

// Save writes all store files. Each file is written to a temporary name
// and renamed into place.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	chunks := s.chunks
	if chunks == nil {
		chunks = []book.Chunk{}
	}
	if err := writeJSON(filepath.Join(s.dir, ChunksFile), chunks); err != nil {
		return err
	}
	if s.vectors != nil {
		if err := writeJSON(filepath.Join(s.dir, EmbeddingsFile), s.vectors); err != nil {
			return err
		}
	} else if err := os.Remove(filepath.Join(s.dir, EmbeddingsFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale embeddings: %w", err)
	}
	return writeJSON(filepath.Join(s.dir, MetadataFile), s.metadataLocked())
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Chunks returns a copy of the chunks in store order.
func (s *Store) Chunks() []book.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]book.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Snapshot returns copies of the chunks and their vectors. vectors is nil
// when the store has no embeddings.
func (s *Store) Snapshot() ([]book.Chunk, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]book.Chunk, len(s.chunks))
	copy(chunks, s.chunks)
	if s.vectors == nil {
		return chunks, nil
	}
	vectors := make([][]float32, len(s.vectors))
	copy(vectors, s.vectors)
	return chunks, vectors
}

// HasVectors reports whether chunks carry embeddings.
func (s *Store) HasVectors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors != nil
}

// Replace swaps the whole store contents for a new processing run.
// vectors must be nil or aligned with chunks.
func (s *Store) Replace(chunks []book.Chunk, vectors [][]float32, hashes map[string]string) error {
	if vectors != nil && len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append([]book.Chunk(nil), chunks...)
	s.vectors = nil
	if vectors != nil {
		s.vectors = append([][]float32(nil), vectors...)
	}
	s.hashes = make(map[string]string, len(hashes))
	for k, v := range hashes {
		s.hashes[k] = v
	}
	s.updated = time.Now()
	return nil
}

// DuplicateError is returned by ReplaceBook when a stored book already has
// the content hash being written.
type DuplicateError struct {
	Book string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("content already stored as %q", e.Book)
}

// ReplaceBook removes every chunk of title and appends chunks in their
// place, keeping other books in order. If only one side has vectors the
// other side is padded with zero vectors. A non-empty hash already held by
// any stored book yields *DuplicateError and leaves the store unchanged.
func (s *Store) ReplaceBook(title, hash string, chunks []book.Chunk, vectors [][]float32) error {
	if vectors != nil && len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if hash != "" {
		for other, h := range s.hashes {
			if h == hash {
				return &DuplicateError{Book: other}
			}
		}
	}

	keptChunks := make([]book.Chunk, 0, len(s.chunks)+len(chunks))
	var keptVectors [][]float32
	withVectors := s.vectors != nil || vectors != nil
	for i, c := range s.chunks {
		if c.BookTitle == title {
			continue
		}
		keptChunks = append(keptChunks, c)
		if withVectors {
			keptVectors = append(keptVectors, s.vectorAt(i))
		}
	}
	for i, c := range chunks {
		keptChunks = append(keptChunks, c)
		if withVectors {
			if vectors != nil {
				keptVectors = append(keptVectors, vectors[i])
			} else {
				keptVectors = append(keptVectors, make([]float32, s.dims))
			}
		}
	}

	s.chunks = keptChunks
	s.vectors = nil
	if withVectors {
		s.vectors = keptVectors
		if s.vectors == nil {
			s.vectors = [][]float32{}
		}
	}
	if hash != "" {
		s.hashes[title] = hash
	} else {
		delete(s.hashes, title)
	}
	s.updated = time.Now()
	return nil
}

func (s *Store) vectorAt(i int) []float32 {
	if s.vectors == nil {
		return make([]float32, s.dims)
	}
	return s.vectors[i]
}

// BookForHash returns the title of a stored book with the given content hash.
func (s *Store) BookForHash(hash string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for title, h := range s.hashes {
		if h == hash {
			return title, true
		}
	}
	return "", false
}

// ByDatapointID finds a chunk by its vector index identifier.
func (s *Store) ByDatapointID(id string) (book.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.DatapointID() == id {
			return c, true
		}
	}
	return book.Chunk{}, false
}

// Metadata summarises the current contents.
func (s *Store) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadataLocked()
}

func (s *Store) metadataLocked() Metadata {
	seen := make(map[string]bool)
	books := []string{}
	words := 0
	for _, c := range s.chunks {
		words += c.WordCount
		if !seen[c.BookTitle] {
			seen[c.BookTitle] = true
			books = append(books, c.BookTitle)
		}
	}
	sort.Strings(books)

	dims := 0
	if s.vectors != nil {
		dims = s.dims
	}
	hashes := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		hashes[k] = v
	}
	return Metadata{
		TotalChunks:         len(s.chunks),
		EmbeddingDimensions: dims,
		BooksProcessed:      books,
		TotalWords:          words,
		BookHashes:          hashes,
		UpdatedAt:           s.updated,
	}
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}
