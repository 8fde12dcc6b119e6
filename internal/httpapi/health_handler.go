package httpapi

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime"`
}

// handleHealth serves GET /health per spec §6.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		UptimeSeconds: int(time.Since(s.startedAt).Seconds()),
	})
}
