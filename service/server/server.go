package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ledgerwire/service/metrics"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the ledger codec service.
type Server struct {
	addr         string
	codec        *wire.Codec
	publisher    natspkg.Publisher
	ssePublisher *SSEPublisher
	tracker      *tracker.Tracker
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, POST /api/v1/events answers 503.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The tracker is optional - if nil, events are published without progress tracking.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, codec *wire.Codec, publisher natspkg.Publisher, ssePublisher *SSEPublisher, tr *tracker.Tracker, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		codec:        codec,
		publisher:    publisher,
		ssePublisher: ssePublisher,
		tracker:      tr,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routing table wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Codec routes
	mux.Handle("POST /api/v1/decode/{name}", s.instrument("/api/v1/decode", handleDecode(s.codec, s.logger)))
	mux.Handle("GET /api/v1/families", s.instrument("/api/v1/families", handleListFamilies()))
	mux.Handle("GET /api/v1/families/{name}", s.instrument("/api/v1/families/{name}", handleGetFamily()))

	// Event routes
	mux.Handle("POST /api/v1/events", s.instrument("/api/v1/events", handlePublishEvent(s.codec, s.publisher, s.tracker, s.logger)))
	if s.tracker != nil {
		mux.Handle("GET /api/v1/progress/{account}", s.instrument("/api/v1/progress", handleGetProgress(s.tracker, s.logger)))
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/events/{account}", handleStreamEvents(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/events", handleStreamEvents(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE responses stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	// Then shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
