package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prilive-com/enflux"
	"github.com/prilive-com/enflux/source"
)

// eventHistoryLimit bounds the event list on the failover endpoint.
const eventHistoryLimit = 50

// Handler serves the /resilience surface for one manager.
type Handler struct {
	manager *enflux.Manager
	logger  *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New creates a Handler for the given manager.
func New(manager *enflux.Manager, opts ...Option) *Handler {
	h := &Handler{manager: manager}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Router builds the chi router with every endpoint mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/resilience", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/health", h.handleHealth)
		r.Post("/request", h.handleRequest)
		r.Get("/circuit-breakers", h.handleBreakers)
		r.Get("/reliability", h.handleReliability)
		r.Get("/failover", h.handleFailover)
		r.Get("/sources", h.handleListSources)
		r.Post("/sources", h.handleRegisterSource)
		r.Post("/maintenance", h.handleMaintenance)
	})
	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.Status())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.manager.HealthCheck(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	status := http.StatusOK
	if !health.OK() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, health)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req source.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body", nil)
		return
	}

	result, err := h.manager.ExecuteRequest(r.Context(), &req)
	if err != nil {
		h.writeRequestError(w, &req, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// writeRequestError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeRequestError(w http.ResponseWriter, req *source.Request, err error) {
	var exhausted *source.ExhaustedError
	if errors.As(err, &exhausted) {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "all sources exhausted",
			"requestId": exhausted.RequestID,
			"dataType":  exhausted.DataType,
			"attempts":  exhausted.Attempts,
		})
		return
	}

	var invalid *source.ValidationError
	switch {
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, invalid.Error(), map[string]any{"field": invalid.Field})
	case errors.Is(err, source.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, source.ErrTooManyRequests):
		h.writeError(w, http.StatusTooManyRequests, err.Error(), nil)
	case errors.Is(err, source.ErrManagerClosed):
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		h.logger.Error("request failed", "request_id", req.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (h *Handler) handleBreakers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"summary":  h.manager.BreakerSummary(),
		"breakers": h.manager.BreakerMetrics(),
	})
}

func (h *Handler) handleReliability(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("sourceId"); id != "" {
		h.writeJSON(w, http.StatusOK, h.manager.ReliabilityReport(id))
		return
	}
	h.writeJSON(w, http.StatusOK, h.manager.ReliabilityReport())
}

func (h *Handler) handleFailover(w http.ResponseWriter, r *http.Request) {
	limit := eventHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= eventHistoryLimit {
			limit = n
		}
	}

	report := h.manager.ReliabilityReport()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":  h.manager.FailoverStats(),
		"events": h.manager.FailoverEvents(limit),
		"health": map[string]any{
			"healthy":         report.Healthy,
			"degraded":        report.Degraded,
			"unhealthy":       report.Unhealthy,
			"unknown":         report.Unknown,
			"meanHealthScore": report.MeanHealthScore,
		},
	})
}

func (h *Handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.manager.Sources())
}

func (h *Handler) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	var cfg source.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed source config", nil)
		return
	}

	if err := h.manager.RegisterSource(cfg); err != nil {
		var confErr *source.ConfigError
		if errors.As(err, &confErr) {
			h.writeError(w, http.StatusBadRequest, confErr.Error(), map[string]any{"field": confErr.Field})
			return
		}
		if errors.Is(err, source.ErrManagerClosed) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"id": cfg.ID})
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.Maintenance(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, details map[string]any) {
	body := map[string]any{"error": message}
	for k, v := range details {
		body[k] = v
	}
	h.writeJSON(w, status, body)
}
