package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/bookrag/internal/answer"
	"github.com/dgallion1/bookrag/internal/config"
	"github.com/dgallion1/bookrag/internal/embedding"
	"github.com/dgallion1/bookrag/internal/llm"
	"github.com/dgallion1/bookrag/internal/pipeline"
	"github.com/dgallion1/bookrag/internal/retrieval"
	"github.com/dgallion1/bookrag/internal/store"
	"github.com/dgallion1/bookrag/internal/vectorindex"
)

// NeighborFinder queries the vector index.
type NeighborFinder interface {
	FindNeighbors(ctx context.Context, vector []float32, topK int, books []string) ([]vectorindex.Neighbor, error)
}

// Deps are the services behind the API. Embedder, Index, Neighbors and
// Stats are optional.
type Deps struct {
	Store        *store.Store
	Retriever    *retrieval.Retriever
	Answers      *answer.Service
	Orchestrator *pipeline.Orchestrator
	Embedder     embedding.Embedder
	Index        pipeline.Indexer
	Neighbors    NeighborFinder
	Stats        *llm.Stats
}

// Server is the HTTP API server for bookrag.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleLiveness)
	r.Get("/api/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/books", s.handleListBooks)
	r.Get("/api/search", s.handleSearch)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Delete("/api/books/{title}", s.handleDeleteBook)
	})

	s.router = r
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	meta := s.deps.Store.Metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"chunks_loaded":   meta.TotalChunks,
		"metadata_loaded": !meta.UpdatedAt.IsZero(),
		"vectors_loaded":  s.deps.Store.HasVectors(),
	})
}
