package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	meta := s.deps.Store.Metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"books":        meta.BooksProcessed,
		"total_chunks": meta.TotalChunks,
		"total_words":  meta.TotalWords,
	})
}

// handleDeleteBook removes a book's chunks from the store and its
// datapoints from the vector index.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")

	var ids []string
	for _, c := range s.deps.Store.Chunks() {
		if c.BookTitle == title {
			ids = append(ids, c.DatapointID())
		}
	}
	if len(ids) == 0 {
		jsonError(w, "book not found", http.StatusNotFound)
		return
	}

	if err := s.deps.Store.ReplaceBook(title, "", nil, nil); err != nil {
		jsonError(w, "failed to remove book: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.deps.Store.Save(); err != nil {
		s.log.Error("store save failed", "error", err)
		jsonError(w, "failed to save store", http.StatusInternalServerError)
		return
	}

	indexRemoved := 0
	if s.deps.Index != nil {
		if err := s.deps.Index.Remove(r.Context(), ids); err != nil {
			s.log.Error("index removal failed", "book", title, "error", err)
		} else {
			indexRemoved = len(ids)
		}
	}

	s.log.Info("book deleted", "book", title, "chunks", len(ids))
	writeJSON(w, http.StatusOK, map[string]any{
		"book":           title,
		"chunks_deleted": len(ids),
		"index_removed":  indexRemoved,
	})
}
