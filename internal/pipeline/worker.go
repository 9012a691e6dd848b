package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/embedding"
	"github.com/dgallion1/bookrag/internal/ingest"
	"github.com/dgallion1/bookrag/internal/store"
	"github.com/dgallion1/bookrag/internal/vectorindex"
)

// Indexer writes datapoints to the vector index.
type Indexer interface {
	Upsert(ctx context.Context, points []vectorindex.Datapoint) error
	Remove(ctx context.Context, ids []string) error
}

// Deps are the collaborators a Worker uses. Embedder and Index are optional.
type Deps struct {
	Processor      *ingest.Processor
	Store          *store.Store
	Embedder       embedding.Embedder
	Index          Indexer
	EmbedBatchSize int
}

// Worker processes a single book job. One Worker is shared by all
// orchestrator goroutines; store and index updates for a title are
// serialised.
type Worker struct {
	deps   Deps
	log    *slog.Logger
	titles titleLocks
}

func NewWorker(deps Deps, log *slog.Logger) *Worker {
	return &Worker{deps: deps, log: log}
}

// titleLocks hands out one mutex per book title, dropped once unused.
type titleLocks struct {
	mu    sync.Mutex
	locks map[string]*titleLock
}

type titleLock struct {
	sync.Mutex
	refs int
}

// lock blocks until title is free and returns its unlock func.
func (t *titleLocks) lock(title string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*titleLock)
	}
	l, ok := t.locks[title]
	if !ok {
		l = &titleLock{}
		t.locks[title] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(t.locks, title)
		}
		t.mu.Unlock()
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer job.SetFileData(nil)

	title := job.BookTitle
	if title == "" {
		title = ingest.BookTitle(job.Filename)
	}

	// Phase 1: Extract
	job.SetStatus(StatusExtracting, "extracting")
	text, err := w.deps.Processor.ExtractReader(job.Filename, bytes.NewReader(job.FileData()))
	if err != nil {
		log.Error("extract failed", "error", err)
		job.AddError(fmt.Sprintf("extract: %s", err))
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("no extractable text")
		job.AddError("no extractable text")
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	hash := ContentHashHex([]byte(text))
	job.SetContentHash(hash)
	if existing, ok := w.deps.Store.BookForHash(hash); ok {
		log.Info("duplicate book, skipping", "existing_book", existing)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 2: Chunk and validate
	job.SetStatus(StatusChunking, "chunking")
	chunks, err := w.deps.Processor.ProcessText(title, text)
	if err != nil {
		log.Error("chunking failed", "error", err)
		job.AddError(fmt.Sprintf("chunk: %s", err))
		job.SetStatus(StatusFailed, "chunking")
		return
	}
	valid := w.deps.Processor.Validate(chunks)
	job.SetChunks(len(chunks), len(valid))
	log.Info("chunked book", "book", title, "chunks", len(chunks), "valid", len(valid))
	if len(valid) == 0 {
		job.AddError("no valid chunks")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	hadErrors := false

	// Phase 3: Embed
	var vectors [][]float32
	if w.deps.Embedder != nil {
		job.SetStatus(StatusEmbedding, "embedding")
		texts := make([]string, len(valid))
		for i, c := range valid {
			texts[i] = c.Text
		}
		res, err := embedding.EmbedBatches(ctx, w.deps.Embedder, texts, w.deps.EmbedBatchSize, log)
		if err != nil {
			log.Error("embedding aborted", "error", err)
			job.AddError(fmt.Sprintf("embed: %s", err))
			job.SetStatus(StatusFailed, "embedding")
			return
		}
		vectors = res.Vectors
		job.SetEmbedded(len(texts)-res.FailedTexts, res.FailedTexts)
		if res.FailedBatches > 0 {
			hadErrors = true
			job.AddError(fmt.Sprintf("%d embedding batches failed; zero vectors stored for %d chunks", res.FailedBatches, res.FailedTexts))
		}
	}

	// Phase 4: Store
	job.SetStatus(StatusStoring, "storing")
	unlock := w.titles.lock(title)
	defer unlock()
	previous := bookDatapointIDs(w.deps.Store.Chunks(), title)
	if err := w.deps.Store.ReplaceBook(title, hash, valid, vectors); err != nil {
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			log.Info("duplicate book, skipping", "existing_book", dup.Book)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
		log.Error("store update failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	if err := w.deps.Store.Save(); err != nil {
		log.Error("store save failed", "error", err)
		job.AddError(fmt.Sprintf("save: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	// Phase 5: Index
	if w.deps.Index != nil && vectors != nil {
		job.SetStatus(StatusIndexing, "indexing")
		if err := w.index(ctx, valid, vectors, previous, job); err != nil {
			log.Error("index update failed", "error", err)
			job.AddError(fmt.Sprintf("index: %s", err))
			hadErrors = true
		}
	}

	log.Info("ingest complete", "book", title, "chunks", len(valid), "errors", hadErrors)
	if hadErrors {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}

// index upserts chunks with real vectors and removes datapoints of the
// book's previous version that no longer exist.
func (w *Worker) index(ctx context.Context, chunks []book.Chunk, vectors [][]float32, previous map[string]struct{}, job *Job) error {
	var keepChunks []book.Chunk
	var keepVectors [][]float32
	current := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		current[c.DatapointID()] = struct{}{}
		if isZero(vectors[i]) {
			continue
		}
		keepChunks = append(keepChunks, c)
		keepVectors = append(keepVectors, vectors[i])
	}

	points, err := vectorindex.Datapoints(keepChunks, keepVectors)
	if err != nil {
		return err
	}
	if err := w.deps.Index.Upsert(ctx, points); err != nil {
		return err
	}
	job.SetIndexed(len(points))

	var stale []string
	for id := range previous {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	return w.deps.Index.Remove(ctx, stale)
}

func bookDatapointIDs(chunks []book.Chunk, title string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, c := range chunks {
		if c.BookTitle == title {
			ids[c.DatapointID()] = struct{}{}
		}
	}
	return ids
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
