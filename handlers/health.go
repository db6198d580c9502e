package handlers

import (
	"context"
	"net/http"
	"time"

	"streamfinder/models"
)

// UpstreamChecker reports the content API's health.
type UpstreamChecker interface {
	Health(ctx context.Context) (*models.UpstreamHealth, error)
}

type HealthHandler struct {
	upstream UpstreamChecker
	sessions func() int
}

func NewHealthHandler(upstream UpstreamChecker, sessionCount func() int) *HealthHandler {
	return &HealthHandler{upstream: upstream, sessions: sessionCount}
}

type healthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	Sessions      int                    `json:"sessions"`
	Upstream      *models.UpstreamHealth `json:"upstream,omitempty"`
	UpstreamError string                 `json:"upstream_error,omitempty"`
}

// Health reports "healthy" when the content API answers and "degraded"
// otherwise. The front end itself always answers 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if h.sessions != nil {
		resp.Sessions = h.sessions()
	}
	upstream, err := h.upstream.Health(ctx)
	if err != nil {
		resp.Status = "degraded"
		resp.UpstreamError = err.Error()
	} else {
		resp.Upstream = upstream
	}
	writeJSON(w, http.StatusOK, resp)
}
