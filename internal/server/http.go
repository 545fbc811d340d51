package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MustBeArt/postlocutor/internal/config"
	"github.com/MustBeArt/postlocutor/internal/metrics"
	"github.com/MustBeArt/postlocutor/internal/station"
	"github.com/MustBeArt/postlocutor/internal/state"
)

const serviceName = "postlocutor"

// BufferInfo reports playback buffer occupancy
type BufferInfo interface {
	BufferLen() int
	BufferCap() int
}

// StationLister reports tracked stations
type StationLister interface {
	Snapshot() []station.Info
	Count() int
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	state    *state.ReceiverState
	buffer   BufferInfo
	stations StationLister
	metrics  *metrics.Metrics

	instanceID uuid.UUID
	startTime  time.Time
	version    string
}

// HTTPServerDeps groups the collaborators the API reports on
type HTTPServerDeps struct {
	Config     *config.Config
	State      *state.ReceiverState
	Buffer     BufferInfo
	Stations   StationLister
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	InstanceID uuid.UUID
	Version    string
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, deps HTTPServerDeps) *HTTPServer {
	h := &HTTPServer{
		logger:     logger,
		config:     deps.Config,
		state:      deps.State,
		buffer:     deps.Buffer,
		stations:   deps.Stations,
		metrics:    deps.Metrics,
		instanceID: deps.InstanceID,
		startTime:  time.Now(),
		version:    deps.Version,
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux, deps.Gatherer)
	h.handler = mux

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stations", h.withMetrics("/stations", h.handleStations))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (not instrumented itself)
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
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

// Start binds the listen address and serves in the background. A bind
// failure is returned.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	running := h.state.Running()
	status := "healthy"
	if !running {
		status = "stopped"
	}

	health := map[string]interface{}{
		"status":      status,
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.startTime).String(),
		"instance_id": h.instanceID.String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": h.version,
		},
		"components": map[string]interface{}{
			"receiver": map[string]interface{}{
				"running": running,
			},
			"playback": map[string]interface{}{
				"buffer_depth":    h.bufferLen(),
				"buffer_capacity": h.bufferCap(),
			},
		},
	}

	if !running {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(health)
		return
	}
	writeJSON(w, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	snap := h.state.Snapshot()

	var sinceLastAudio interface{}
	if d, ok := snap.SinceLastAudio(now); ok {
		sinceLastAudio = d.Seconds()
	}

	stations := 0
	if h.stations != nil {
		stations = h.stations.Count()
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": now.UTC(),
		"receiver":  snap,
		"playback": map[string]interface{}{
			"buffer_depth":    h.bufferLen(),
			"buffer_capacity": h.bufferCap(),
		},
		"seconds_since_last_audio": sinceLastAudio,
		"stations":                 stations,
	}

	writeJSON(w, stats)
}

// handleStations implements the /stations endpoint
func (h *HTTPServer) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := []station.Info{}
	if h.stations != nil {
		infos = h.stations.Snapshot()
	}

	writeJSON(w, map[string]interface{}{
		"total_stations": len(infos),
		"timestamp":      time.Now().UTC(),
		"stations":       infos,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.config == nil {
		http.Error(w, "Configuration unavailable", http.StatusInternalServerError)
		return
	}

	// Output paths are omitted
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"read_timeout": h.config.Server.ReadTimeout,
		},
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"channels":          h.config.Audio.Channels,
			"frame_duration_ms": h.config.Audio.FrameDuration,
			"buffer_capacity":   h.config.Audio.BufferCapacity,
			"output":            h.config.Audio.Output,
		},
		"station": map[string]interface{}{
			"timeout_seconds": h.config.Station.Timeout,
		},
		"status": map[string]interface{}{
			"interval_seconds": h.config.Status.Interval,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
		},
	}

	writeJSON(w, sanitizedConfig)
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

	writeJSON(w, map[string]interface{}{
		"service": "Opulent Voice receiver",
		"version": h.version,
		"endpoints": map[string]interface{}{
			"GET /":         "API documentation",
			"GET /health":   "Service health check",
			"GET /stats":    "Receiver counters and playback buffer state",
			"GET /stations": "Stations heard recently",
			"GET /config":   "Get service configuration",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) bufferLen() int {
	if h.buffer == nil {
		return 0
	}
	return h.buffer.BufferLen()
}

func (h *HTTPServer) bufferCap() int {
	if h.buffer == nil {
		return 0
	}
	return h.buffer.BufferCap()
}
