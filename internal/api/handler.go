// Package api exposes the latest sample, display sessions and service status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/environmental-monitor/internal/sampler"
	"github.com/roman-kulish/environmental-monitor/internal/sample"
	"github.com/roman-kulish/environmental-monitor/internal/stream"
)

// HealthReporter reports the sampling scheduler status
type HealthReporter interface {
	Health() sampler.Health
}

// Counter reports the number of stored samples
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// WithHealth sets the scheduler reported by the status endpoint
func WithHealth(hr HealthReporter) func(*Handler) {
	return func(h *Handler) {
		h.health = hr
	}
}

// WithCounter sets the store queried for the row count by the status endpoint
func WithCounter(c Counter) func(*Handler) {
	return func(h *Handler) {
		h.counter = c
	}
}

// WithAllowedOrigins sets the origins allowed to open a stream. Entries are host
// or host:port; "*" allows any origin. Same-host requests are always allowed.
func WithAllowedOrigins(origins []string) func(*Handler) {
	return func(h *Handler) {
		h.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the handler
func WithLogger(logger *slog.Logger) func(*Handler) {
	return func(h *Handler) {
		h.logger = logger.With(slog.String("component", "api"))
	}
}

// Handler serves the query surface on top of a stream.Distributor
type Handler struct {
	dist           *stream.Distributor
	health         HealthReporter
	counter        Counter
	allowedOrigins []string
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	startTime      time.Time
}

// NewHandler creates a new Handler with a discard logger
func NewHandler(dist *stream.Distributor, options ...func(*Handler)) *Handler {
	h := &Handler{
		dist:      dist,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		startTime: time.Now(),
	}

	for _, option := range options {
		option(h)
	}

	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// Router returns the routes with logging and metrics middleware applied
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/latest", h.LatestHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.OpenSessionHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.CloseSessionHandler).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/window", h.WindowHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/tick", h.TickHandler).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/stream", h.StreamHandler).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler())

	router.Use(h.loggingMiddleware)
	router.Use(metricsMiddleware)

	return router
}

// LatestHandler serves GET /api/latest
func (h *Handler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	latest, err := h.dist.Latest(r.Context())
	if err != nil {
		h.respondStreamError(w, err)
		return
	}
	h.respondJSON(w, latest, http.StatusOK)
}

// OpenSessionHandler serves POST /api/sessions
func (h *Handler) OpenSessionHandler(w http.ResponseWriter, _ *http.Request) {
	sess := h.dist.Open()
	h.respondJSON(w, map[string]any{
		"id":       sess.ID,
		"rollover": h.dist.Rollover(),
	}, http.StatusCreated)
}

// CloseSessionHandler serves DELETE /api/sessions/{id}
func (h *Handler) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.dist.Close(mux.Vars(r)["id"]); err != nil {
		h.respondStreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WindowHandler serves GET /api/sessions/{id}/window
func (h *Handler) WindowHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	samples, err := h.dist.Window(r.Context(), id)
	if err != nil {
		h.respondStreamError(w, err)
		return
	}
	h.respondJSON(w, map[string]any{
		"id":      id,
		"samples": samples,
	}, http.StatusOK)
}

// TickHandler serves POST /api/sessions/{id}/tick
func (h *Handler) TickHandler(w http.ResponseWriter, r *http.Request) {
	pushed, err := h.dist.Tick(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondStreamError(w, err)
		return
	}
	h.respondJSON(w, map[string]bool{"pushed": pushed}, http.StatusOK)
}

// StatusHandler serves GET /api/status
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime":   strings.TrimSpace(humanize.RelTime(h.startTime, time.Now(), "", "")),
		"sessions": h.dist.Sessions(),
	}

	if h.health != nil {
		health := h.health.Health()
		resp["sampler"] = health
		if !health.LastSample.IsZero() {
			resp["last_sample_age"] = humanize.Time(health.LastSample)
		}
	}

	if h.counter != nil {
		if count, err := h.counter.Count(r.Context()); err != nil {
			h.logger.Warn("counting samples failed", slog.String("error", err.Error()))
			resp["samples"] = nil
		} else {
			resp["samples"] = count
			resp["samples_human"] = humanize.Comma(count)
		}
	}

	h.respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) respondStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrNoData):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, stream.ErrUnknownSession), errors.Is(err, stream.ErrSessionClosed):
		h.respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, stream.ErrUnavailable):
		h.logger.Warn("store unavailable", slog.String("error", err.Error()))
		h.respondError(w, "data unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		h.respondError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("writing response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, map[string]string{"error": message}, status)
}

// streamMessage is a frame sent over the session stream
type streamMessage struct {
	Type    string          `json:"type"` // "window", "sample" or "unavailable"
	Samples []sample.Sample `json:"samples,omitempty"`
	Sample  *sample.Sample  `json:"sample,omitempty"`
}
