// Command ingest processes a directory of books into a chunk store, with
// optional embeddings and vector index upsert.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/config"
	"github.com/dgallion1/bookrag/internal/embedding"
	"github.com/dgallion1/bookrag/internal/ingest"
	"github.com/dgallion1/bookrag/internal/llm"
	"github.com/dgallion1/bookrag/internal/parser"
	"github.com/dgallion1/bookrag/internal/pipeline"
	"github.com/dgallion1/bookrag/internal/store"
	"github.com/dgallion1/bookrag/internal/tokenizer"
	"github.com/dgallion1/bookrag/internal/vectorindex"
)

type options struct {
	booksDir string
	outDir   string
	embed    bool
	index    bool
	verbose  bool
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.booksDir, "books", cfg.BooksDir, "Directory scanned recursively for books")
	flag.StringVar(&opts.outDir, "out", cfg.DataDir, "Directory the chunk store is written to")
	flag.BoolVar(&opts.embed, "embed", false, "Generate embeddings (requires OPENAI_API_KEY)")
	flag.BoolVar(&opts.index, "index", false, "Upsert embeddings into the vector index (implies -embed)")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()
	if opts.index {
		opts.embed = true
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, log *slog.Logger) error {
	if err := cfg.ValidateChunking(); err != nil {
		return err
	}
	if opts.embed && !cfg.LLMEnabled() {
		return errors.New("-embed requires OPENAI_API_KEY")
	}
	if opts.index && !cfg.IndexEnabled() {
		return errors.New("-index requires INDEX_API_URL and INDEX_RESOURCE")
	}

	tok, err := tokenizer.Default()
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	proc, err := ingest.NewProcessor(cfg.Ingest(), tok, log)
	if err != nil {
		return err
	}

	paths, err := discoverBooks(opts.booksDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no supported books found in %s", opts.booksDir)
	}
	log.Info("found books", "dir", opts.booksDir, "count", len(paths))

	start := time.Now()
	chunks, hashes := processBooks(proc, paths, log)
	valid := proc.Validate(chunks)
	log.Info("validated chunks", "produced", len(chunks), "valid", len(valid))
	if len(valid) == 0 {
		return errors.New("no valid chunks produced")
	}
	kept := make(map[string]bool)
	for _, c := range valid {
		kept[c.BookTitle] = true
	}
	for title := range hashes {
		if !kept[title] {
			log.Warn("no valid chunks for book", "book", title)
			delete(hashes, title)
		}
	}

	var vectors [][]float32
	if opts.embed {
		client := llm.NewClient(llm.ClientConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
		emb := embedding.NewOpenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions, nil)
		texts := make([]string, len(valid))
		for i, c := range valid {
			texts[i] = c.Text
		}
		res, err := embedding.EmbedBatches(ctx, emb, texts, cfg.EmbedBatchSize, log)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if res.FailedBatches > 0 {
			log.Warn("some embedding batches failed; zero vectors stored", "batches", res.FailedBatches, "chunks", res.FailedTexts)
		}
		vectors = res.Vectors
	}

	st := store.New(opts.outDir, cfg.EmbeddingDimensions)
	if err := st.Replace(valid, vectors, hashes); err != nil {
		return err
	}
	if err := st.Save(); err != nil {
		return fmt.Errorf("save chunk store: %w", err)
	}
	meta := st.Metadata()
	log.Info("chunk store saved",
		"dir", opts.outDir,
		"chunks", meta.TotalChunks,
		"books", len(meta.BooksProcessed),
		"words", meta.TotalWords,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if opts.index {
		ic := vectorindex.NewClient(cfg.VectorIndex(), log)
		defer ic.Close()
		points, err := vectorindex.Datapoints(withVectors(valid, vectors))
		if err != nil {
			return err
		}
		if err := ic.Upsert(ctx, points); err != nil {
			return fmt.Errorf("index upsert: %w", err)
		}
		log.Info("index updated", "datapoints", len(points))
	}
	return nil
}

// discoverBooks returns supported files under dir in lexical order.
func discoverBooks(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !parser.IsSupportedExtension(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// processBooks chunks each file. A file that fails is logged and skipped.
// Titles must be unique across the scan: a file whose title was already
// produced by an earlier path is skipped.
func processBooks(proc *ingest.Processor, paths []string, log *slog.Logger) ([]book.Chunk, map[string]string) {
	var all []book.Chunk
	hashes := make(map[string]string)
	claimed := make(map[string]string)
	for _, path := range paths {
		title := ingest.BookTitle(path)
		if first, ok := claimed[title]; ok {
			log.Error("skipping book with duplicate title", "path", path, "book", title, "first_path", first)
			continue
		}
		text, err := proc.ExtractFile(path)
		if err != nil {
			log.Error("skipping book", "path", path, "error", err)
			continue
		}
		chunks, err := proc.ProcessText(title, text)
		if err != nil {
			log.Error("skipping book", "path", path, "error", err)
			continue
		}
		if len(chunks) == 0 {
			log.Warn("no chunks produced", "path", path)
			continue
		}
		claimed[title] = path
		hashes[title] = pipeline.ContentHashHex([]byte(text))
		all = append(all, chunks...)
		log.Info("processed book", "book", title, "chunks", len(chunks))
	}
	return all, hashes
}

// withVectors drops chunks whose vector is all zeros.
func withVectors(chunks []book.Chunk, vectors [][]float32) ([]book.Chunk, [][]float32) {
	var keptChunks []book.Chunk
	var keptVectors [][]float32
	for i, v := range vectors {
		for _, x := range v {
			if x != 0 {
				keptChunks = append(keptChunks, chunks[i])
				keptVectors = append(keptVectors, v)
				break
			}
		}
	}
	return keptChunks, keptVectors
}
