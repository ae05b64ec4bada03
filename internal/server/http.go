package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrii-vasyliev/vad-segmenter/internal/config"
	"github.com/andrii-vasyliev/vad-segmenter/internal/metrics"
	"github.com/andrii-vasyliev/vad-segmenter/internal/segmenter"
	"github.com/andrii-vasyliev/vad-segmenter/internal/vad"
)

// HTTPServer provides HTTP API endpoints for monitoring the engine
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	engine     *segmenter.Engine
	classifier *vad.EnergyClassifier
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, engine *segmenter.Engine, classifier *vad.EnergyClassifier, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		engine:     engine,
		classifier: classifier,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with request instrumentation
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint,
				fmt.Sprintf("%d", ww.statusCode), time.Since(startTime).Seconds())
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
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
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	engineStats := h.engine.GetStats()

	status := "healthy"
	if !engineStats.Running {
		status = "stopped"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "vad-segmenter",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"engine": map[string]interface{}{
				"running":            engineStats.Running,
				"state":              engineStats.Gate.State,
				"frames_processed":   engineStats.Gate.FramesProcessed,
				"utterances_emitted": engineStats.Gate.UtterancesEmitted,
			},
			"queue": map[string]interface{}{
				"depth":   engineStats.Queue.Depth,
				"dropped": engineStats.Queue.Dropped,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":     time.Since(h.startTime).String(),
		"timestamp":  time.Now().UTC(),
		"engine":     h.engine.GetStats(),
		"classifier": h.classifier.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"channels":          h.config.Audio.Channels,
			"bit_depth":         h.config.Audio.BitDepth,
			"block_duration_ms": h.config.Audio.BlockDurationMs,
		},
		"vad": map[string]interface{}{
			"aggressiveness": h.config.VAD.Aggressiveness,
		},
		"segmenter": map[string]interface{}{
			"frame_duration_ms":      h.config.Segmenter.FrameDurationMs,
			"start_consecutive":      h.config.Segmenter.StartConsecutive,
			"end_consecutive":        h.config.Segmenter.EndConsecutive,
			"max_utterance_duration": h.config.Segmenter.MaxUtteranceDuration,
		},
		"queue": map[string]interface{}{
			"policy":   h.config.Queue.Policy,
			"capacity": h.config.Queue.Capacity,
		},
		"output": map[string]interface{}{
			"enabled":      h.config.Output.Enabled,
			"directory":    h.config.Output.Directory,
			"min_duration": h.config.Output.MinDuration,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Speech Segmentation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /stats":   "Engine, queue, and classifier statistics",
			"GET /config":  "Service configuration",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
