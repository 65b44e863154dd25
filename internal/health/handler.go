// Package health provides liveness and readiness endpoints. Liveness only
// proves the process is serving; readiness additionally requires the
// backend to be reachable, so a gateway in front of a dead backend is
// pulled from rotation instead of returning a wall of 502s.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// BackendPinger reports whether the protected backend is reachable.
// Implemented by the server over the proxy transport; a function type
// keeps this package free of a proxy dependency.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the BackendPinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls the wrapped function.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// pingTimeout bounds a single readiness probe.
const pingTimeout = 5 * time.Second

// Handler provides HTTP health check endpoints.
type Handler struct {
	pinger  BackendPinger
	version string
}

// NewHandler creates a health check handler.
func NewHandler(pinger BackendPinger, version string) *Handler {
	return &Handler{pinger: pinger, version: version}
}

// ServeHTTP routes to the appropriate health endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		h.handleLiveness(w, r)
	case "/readyz":
		h.handleReadiness(w, r)
	default:
		http.NotFound(w, r)
	}
}

// LivenessResponse is the JSON response for /healthz.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for /readyz.
type ReadinessResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := h.pinger.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadinessResponse{
			Status:  "not_ready",
			Backend: "unreachable",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadinessResponse{
		Status:  "ready",
		Backend: "reachable",
	})
}
