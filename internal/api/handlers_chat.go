package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/embedding"
	"github.com/dgallion1/bookrag/internal/retrieval"
)

// maxSearchResults caps top_k on /api/search.
const maxSearchResults = 50

type chatRequest struct {
	Question string `json:"question"`
}

type source struct {
	Book    string  `json:"book"`
	Chapter string  `json:"chapter"`
	Score   float64 `json:"score"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		jsonError(w, "No question provided", http.StatusBadRequest)
		return
	}
	if s.deps.Store.Len() == 0 {
		jsonError(w, "no books loaded", http.StatusServiceUnavailable)
		return
	}

	results := s.deps.Retriever.Retrieve(question, s.deps.Store.Chunks(), s.cfg.TopK)
	reply := s.deps.Answers.Answer(r.Context(), question, results)

	sources := []source{}
	if retrieval.HasOverlap(results) {
		for _, res := range results {
			sources = append(sources, source{Book: res.Chunk.BookTitle, Chapter: res.Chunk.Chapter, Score: res.Score})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":   reply.Text,
		"question": question,
		"sources":  sources,
		"fallback": reply.Fallback,
	})
}

type searchHit struct {
	Book         string          `json:"book"`
	Chapter      string          `json:"chapter"`
	ChapterIndex int             `json:"chapter_index"`
	ChunkIndex   book.ChunkIndex `json:"chunk_index"`
	Text         string          `json:"text"`
	Score        float64         `json:"score"`
	Lexical      float64         `json:"lexical"`
}

// handleSearch ranks passages for q. mode=lexical (default) uses word
// overlap, mode=vector compares embeddings held in the store and
// mode=index asks the vector index, optionally restricted to book.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	topK := s.cfg.TopK
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "top_k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = min(n, maxSearchResults)
	}

	var results []retrieval.Result
	var err error
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "lexical":
		results = s.deps.Retriever.Retrieve(q, s.deps.Store.Chunks(), topK)
	case "vector":
		results, err = s.vectorSearch(r, q, topK)
	case "index":
		results, err = s.indexSearch(r, q, topK, r.URL.Query()["book"])
	default:
		jsonError(w, "unknown mode: "+mode, http.StatusBadRequest)
		return
	}
	if err != nil {
		var unavailable *unavailableError
		if errors.As(err, &unavailable) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.log.Error("search failed", "error", err)
		jsonError(w, "search failed", http.StatusBadGateway)
		return
	}

	hits := make([]searchHit, len(results))
	for i, res := range results {
		hits[i] = searchHit{
			Book:         res.Chunk.BookTitle,
			Chapter:      res.Chunk.Chapter,
			ChapterIndex: res.Chunk.ChapterIndex,
			ChunkIndex:   res.Chunk.ChunkIndex,
			Text:         res.Chunk.Text,
			Score:        res.Score,
			Lexical:      res.Lexical,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":       q,
		"results":     hits,
		"has_overlap": retrieval.HasOverlap(results),
	})
}

type unavailableError struct {
	what string
}

func (e *unavailableError) Error() string {
	return e.what + " is not configured"
}

func (s *Server) vectorSearch(r *http.Request, q string, topK int) ([]retrieval.Result, error) {
	if s.deps.Embedder == nil {
		return nil, &unavailableError{what: "embedding model"}
	}
	chunks, vectors := s.deps.Store.Snapshot()
	if vectors == nil {
		return nil, &unavailableError{what: "vector store"}
	}
	qv, err := embedding.EmbedQuery(r.Context(), s.deps.Embedder, q)
	if err != nil {
		return nil, err
	}
	return s.deps.Retriever.RetrieveByVector(qv, chunks, vectors, topK)
}

func (s *Server) indexSearch(r *http.Request, q string, topK int, books []string) ([]retrieval.Result, error) {
	if s.deps.Embedder == nil || s.deps.Neighbors == nil {
		return nil, &unavailableError{what: "vector index"}
	}
	qv, err := embedding.EmbedQuery(r.Context(), s.deps.Embedder, q)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.deps.Neighbors.FindNeighbors(r.Context(), qv, topK, books)
	if err != nil {
		return nil, err
	}
	results := make([]retrieval.Result, 0, len(neighbors))
	for _, n := range neighbors {
		c, ok := s.deps.Store.ByDatapointID(n.DatapointID)
		if !ok {
			s.log.Warn("index returned unknown datapoint", "datapoint_id", n.DatapointID)
			continue
		}
		results = append(results, retrieval.Result{Chunk: c, Score: n.Distance, Lexical: n.Distance})
	}
	return results, nil
}
