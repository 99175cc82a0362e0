// Package api serves the endpoint's health, status and metrics over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Bataide/cip-enip-driver/internal/metrics"
)

// OriginatorStatus describes the originating session.
type OriginatorStatus struct {
	Remote string `json:"remote"`
	State  string `json:"state"`
	Handle uint32 `json:"session_handle"`
	ConnID string `json:"conn_id,omitempty"`
}

// TargetStatus describes the listening side.
type TargetStatus struct {
	Listen      string   `json:"listen"`
	Connections []string `json:"connections"`
}

// SinkStatus describes one broker sink.
type SinkStatus struct {
	Name      string `json:"name"`
	Published int64  `json:"published"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
}

// Status is the JSON response for /status.
type Status struct {
	StartedAt  time.Time         `json:"started_at"`
	Originator *OriginatorStatus `json:"originator,omitempty"`
	Target     *TargetStatus     `json:"target,omitempty"`
	Sinks      []SinkStatus      `json:"sinks"`
}

// Source provides the data the API reports.
type Source interface {
	Status() Status
	MetricsSummary() *metrics.Summary
}

type handlers struct {
	source Source
}

// NewRouter creates the status API router.
func NewRouter(source Source) chi.Router {
	r := chi.NewRouter()
	h := &handlers{source: source}

	r.Get("/healthz", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Get("/metrics", h.handleMetrics)
	r.Get("/metrics/{symbol}", h.handleSymbolMetrics)

	return r
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleHealth reports ok while the originator is registered (or absent)
// and 503 otherwise.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	if st.Originator != nil && st.Originator.State != "Ready" {
		h.writeError(w, http.StatusServiceUnavailable, "originator "+st.Originator.State)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	if st.Sinks == nil {
		st.Sinks = []SinkStatus{}
	}
	h.writeJSON(w, st)
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.source.MetricsSummary())
}

func (h *handlers) handleSymbolMetrics(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	summary := h.source.MetricsSummary()
	stats, ok := summary.BySymbol[symbol]
	if !ok {
		h.writeError(w, http.StatusNotFound, "no metrics for symbol "+symbol)
		return
	}
	h.writeJSON(w, stats)
}
