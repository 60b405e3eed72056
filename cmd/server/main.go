package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/ledgerwire/service/config"
	"github.com/brojonat/ledgerwire/service/metrics"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/server"
	"github.com/brojonat/ledgerwire/service/tracker"
	"github.com/brojonat/ledgerwire/service/wire"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"decode_strict", cfg.DecodeStrict,
		"decode_max_depth", cfg.DecodeMaxDepth,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	m := metrics.NewMetrics(nil)

	opts := cfg.CodecOptions()
	opts.Observer = m
	codec := wire.NewCodec(opts)

	// Initialize progress tracker
	store, closeStore := setupStore(ctx, cfg, logger)
	defer closeStore()
	tr := tracker.New(store, m, logger)

	// Initialize NATS publisher and SSE source
	var (
		publisher    natspkg.Publisher
		ssePublisher *server.SSEPublisher
	)
	if cfg.NATSEnabled {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, codec, m, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub

		sub, err := natspkg.NewSubscriber(cfg.NATSURL, codec, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		ssePublisher = server.NewSSEPublisher(sub, codec, m, logger)
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS disabled, event publishing and streaming are unavailable")
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, codec, publisher, ssePublisher, tr, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupStore picks the progress store: Redis when REDIS_URL is set, memory otherwise.
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tracker.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Info("tracking progress in memory", "ttl", cfg.ProgressTTL)
		return tracker.NewMemoryStore(cfg.ProgressTTL), func() {}
	}

	client, err := tracker.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("tracking progress in redis", "ttl", cfg.ProgressTTL)
	return tracker.NewRedisStore(client, cfg.ProgressTTL), func() { client.Close() }
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
