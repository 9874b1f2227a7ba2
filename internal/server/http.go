package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/storyreel/internal/config"
	"github.com/skypro1111/storyreel/internal/history"
	"github.com/skypro1111/storyreel/internal/metrics"
	"github.com/skypro1111/storyreel/internal/pipeline"
	"github.com/skypro1111/storyreel/internal/run"
)

// RunSource exposes the current generation run
type RunSource interface {
	Snapshot() run.Run
}

// HistorySource exposes finished runs
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]run.Run, error)
	Get(ctx context.Context, runID string) (run.Run, error)
}

// StatsSource exposes pipeline client statistics
type StatsSource interface {
	GetStats() pipeline.ClientStats
}

// Sources bundles what the status API reports on. History and Stats may be nil.
type Sources struct {
	Runs     RunSource
	History  HistorySource
	Stats    StatsSource
	Gatherer prometheus.Gatherer // nil uses the default registry
}

// HTTPServer provides a local status API for the running client
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	sources Sources
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new status API server
func NewHTTPServer(cfg config.StatusConfig, logger *slog.Logger,
	appConfig *config.Config, sources Sources, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sources:   sources,
		metrics:   m,
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      h.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Routes returns the status API handler
func (h *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/run", h.withMetrics("/run", h.handleRun))
	r.Get("/runs", h.withMetrics("/runs", h.handleRuns))
	r.Get("/runs/{run_id}", h.withMetrics("/runs/{run_id}", h.handleRunDetail))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	gatherer := h.sources.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting status API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Status server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping status API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	current := h.sources.Runs.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "storyreel",
			"version": "1.0.0",
		},
		"run": map[string]any{
			"id":     current.ID,
			"status": current.Status,
		},
		"history_enabled": h.sources.History != nil,
	})
}

func (h *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sources.Runs.Snapshot())
}

func (h *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.sources.History == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.sources.History.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_runs": len(runs),
		"runs":       runs,
	})
}

func (h *HTTPServer) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	if current := h.sources.Runs.Snapshot(); current.ID == runID {
		writeJSON(w, http.StatusOK, current)
		return
	}

	if h.sources.History == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	found, err := h.sources.History.Get(r.Context(), runID)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": map[string]any{
			"base_url":         h.config.Service.BaseURL,
			"request_timeout":  h.config.Service.RequestTimeout,
			"generate_timeout": h.config.Service.GenerateTimeout,
			"poll_interval":    h.config.Service.PollInterval,
		},
		"audio": map[string]any{
			"frames_per_buffer": h.config.Audio.FramesPerBuffer,
			"queue_size":        h.config.Audio.QueueSize,
		},
		"run": map[string]any{
			"default_style":  h.config.Run.DefaultStyle,
			"default_scenes": h.config.Run.DefaultScenes,
			"min_scenes":     h.config.Run.MinScenes,
			"max_scenes":     h.config.Run.MaxScenes,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	}
	if h.sources.Stats != nil {
		stats["pipeline"] = h.sources.Stats.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "storyreel status API",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":              "API documentation",
			"GET /health":        "Client health check",
			"GET /run":           "Current generation run",
			"GET /runs":          "Recent finished runs",
			"GET /runs/{run_id}": "A single run",
			"GET /config":        "Client configuration",
			"GET /stats":         "Pipeline client statistics",
			"GET /metrics":       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
