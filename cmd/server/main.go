package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/bookrag/internal/answer"
	"github.com/dgallion1/bookrag/internal/api"
	"github.com/dgallion1/bookrag/internal/config"
	"github.com/dgallion1/bookrag/internal/embedding"
	"github.com/dgallion1/bookrag/internal/ingest"
	"github.com/dgallion1/bookrag/internal/llm"
	"github.com/dgallion1/bookrag/internal/pipeline"
	"github.com/dgallion1/bookrag/internal/retrieval"
	"github.com/dgallion1/bookrag/internal/store"
	"github.com/dgallion1/bookrag/internal/tokenizer"
	"github.com/dgallion1/bookrag/internal/vectorindex"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tok, err := tokenizer.Default()
	if err != nil {
		log.Error("load tokenizer", "error", err)
		os.Exit(1)
	}
	proc, err := ingest.NewProcessor(cfg.Ingest(), tok, log)
	if err != nil {
		log.Error("create processor", "error", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DataDir, cfg.EmbeddingDimensions)
	if err != nil {
		log.Error("open chunk store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	log.Info("chunk store loaded", "dir", cfg.DataDir, "chunks", st.Len(), "vectors", st.HasVectors())

	// Initialize clients.
	stats := llm.NewStats(time.Hour)
	var gen answer.Generator
	var emb embedding.Embedder
	if cfg.LLMEnabled() {
		client := llm.NewClient(llm.ClientConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
		gen = answer.NewOpenAIGenerator(client, cfg.ChatModel, stats)
		emb = embedding.NewOpenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions, stats)
	} else {
		log.Warn("OPENAI_API_KEY not set; answers are the retrieved passages and uploads are not embedded")
	}

	var index pipeline.Indexer
	var neighbors api.NeighborFinder
	var ic *vectorindex.Client
	if cfg.IndexEnabled() {
		ic = vectorindex.NewClient(cfg.VectorIndex(), log.With("component", "vectorindex"))
		index = ic
		if cfg.IndexEndpointURL != "" && cfg.DeployedIndexID != "" {
			neighbors = ic
		}
	}

	// Initialize pipeline.
	worker := pipeline.NewWorker(pipeline.Deps{
		Processor:      proc,
		Store:          st,
		Embedder:       emb,
		Index:          index,
		EmbedBatchSize: cfg.EmbedBatchSize,
	}, log)
	orch := pipeline.NewOrchestrator(cfg, worker, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Store:        st,
		Retriever:    retrieval.New(nil),
		Answers:      answer.NewService(gen, answer.Persona{AssistantName: cfg.AssistantName, AuthorName: cfg.AuthorName}, log),
		Orchestrator: orch,
		Embedder:     emb,
		Index:        index,
		Neighbors:    neighbors,
		Stats:        stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if ic != nil {
			ic.Close()
		}
	}()

	log.Info("starting bookrag", "port", cfg.Port, "books", len(st.Metadata().BooksProcessed))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
