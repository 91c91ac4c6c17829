package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dabberpk/BlockchainAccessLayer/service/bitcoin"
	"github.com/dabberpk/BlockchainAccessLayer/service/confidence"
	"github.com/dabberpk/BlockchainAccessLayer/service/config"
	"github.com/dabberpk/BlockchainAccessLayer/service/db"
	"github.com/dabberpk/BlockchainAccessLayer/service/metrics"
	"github.com/dabberpk/BlockchainAccessLayer/service/nats"
	"github.com/dabberpk/BlockchainAccessLayer/service/server"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.BitcoinNetwork,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection pool and schema.
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store := db.NewStore(dbPool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Bitcoin node connection. The hub fans block and wallet notifications
	// out to the blocking monitoring operations.
	hub := bitcoin.NewHub(m, logger)
	node, err := bitcoin.ConnectNode(bitcoin.NodeConfig{
		Host:       cfg.BitcoinRPCHost,
		User:       cfg.BitcoinRPCUser,
		Pass:       cfg.BitcoinRPCPass,
		DisableTLS: cfg.BitcoinDisableTLS,
	}, hub, m, logger)
	if err != nil {
		logger.Error("failed to connect to bitcoin node", "error", err)
		os.Exit(1)
	}
	defer node.Shutdown()
	logger.Info("connected to bitcoin node", "host", cfg.BitcoinRPCHost)

	calc, err := confidence.NewPoWCalculator(cfg.AdversaryHashRatio)
	if err != nil {
		logger.Error("invalid adversary hash ratio", "error", err)
		os.Exit(1)
	}

	adapter := bitcoin.NewAdapter(node, hub, calc, cfg.ChainParams(), m, logger)

	// NATS JetStream for watch event publishing and SSE streaming.
	publisher, err := nats.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to create SSE publisher", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	watches := server.NewWatchManager(adapter, store, publisher, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, store, adapter, watches, publisher, ssePublisher, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
