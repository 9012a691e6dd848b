package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chat_model":      s.cfg.ChatModel,
		"embedding_model": s.cfg.EmbeddingModel,
		"stats":           s.deps.Stats.Snapshot(),
	})
}
