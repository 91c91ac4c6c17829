package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/dabberpk/BlockchainAccessLayer/service/config"
	"github.com/dabberpk/BlockchainAccessLayer/service/db"
	"github.com/dabberpk/BlockchainAccessLayer/service/metrics"
	"github.com/dabberpk/BlockchainAccessLayer/service/nats"
)

// Server represents the HTTP server for the blockchain access service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        *db.Store
	adapter      chain.Adapter
	watches      *WatchManager
	publisher    nats.Publisher
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The watch manager runs the incoming-transfer watches registered via the API.
// The publisher is optional - if nil, submit results aren't published to NATS.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, store *db.Store, adapter chain.Adapter, watches *WatchManager, publisher nats.Publisher, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		adapter:      adapter,
		watches:      watches,
		publisher:    publisher,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Watches registered before the last restart keep running.
	if err := s.watches.ResumeActive(context.Background()); err != nil {
		return fmt.Errorf("failed to resume active watches: %w", err)
	}

	mux := http.NewServeMux()

	// Transaction routes
	mux.Handle("POST /api/v1/transactions", handleSubmitTransaction(s.adapter, s.store, s.publisher, s.cfg, s.logger))
	mux.Handle("GET /api/v1/transactions", handleListTransactions(s.store, s.logger))
	mux.Handle("GET /api/v1/transactions/{txid}", handleGetTransaction(s.store, s.logger))
	mux.Handle("GET /api/v1/transactions/{txid}/state", handleEnsureTransactionState(s.adapter, s.cfg, s.logger))
	mux.Handle("GET /api/v1/transactions/{txid}/orphaned", handleDetectOrphaned(s.adapter, s.logger))

	// Watch routes
	mux.Handle("POST /api/v1/watches", handleCreateWatch(s.store, s.watches, s.cfg, s.logger))
	mux.Handle("GET /api/v1/watches", handleListWatches(s.store, s.logger))
	mux.Handle("GET /api/v1/watches/{id}", handleGetWatch(s.store, s.logger))
	mux.Handle("DELETE /api/v1/watches/{id}", handleDeleteWatch(s.store, s.watches, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/transactions/{txid}", handleStreamTransactions(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/transactions", handleStreamTransactions(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint probes the node connection
	mux.Handle("GET /health", handleHealth(s.adapter, s.logger))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	var handler http.Handler = corsMiddleware(mux)
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(handler)
	}

	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Submit and state checks block until the requested confirmation
		// depth arrives, which can span multiple blocks.
		WriteTimeout: 0,
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

	// Stop watches and disconnect SSE clients before closing the listener.
	s.watches.StopAll()
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
