package api

import (
	"net/http"
)

func (s *Server) handleRecognitionStats(w http.ResponseWriter, r *http.Request) {
	if s.Latency == nil {
		jsonError(w, "recognition stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":      s.Engine,
		"queue_depth": s.Orchestrator.QueueDepth(),
		"stats":       s.Latency.Snapshot(),
	})
}
