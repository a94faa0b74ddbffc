// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/cache"
	"github.com/wrapcommand/escalation-service/internal/config"
	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/eventlog/memory"
	"github.com/wrapcommand/escalation-service/internal/eventlog/pgstore"
	"github.com/wrapcommand/escalation-service/internal/handler"
	natsclient "github.com/wrapcommand/escalation-service/internal/nats"
	"github.com/wrapcommand/escalation-service/internal/service"
	"github.com/wrapcommand/escalation-service/pkg/logger"
	"github.com/wrapcommand/escalation-service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server", zap.String("event_store", cfg.EventStore))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "escalation-service", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open event store", zap.Error(err))
	}
	defer closeStore()

	// Status cache is optional
	var statusCache service.StatusCache
	var cachePinger handler.Pinger
	if cfg.RedisURL != "" {
		c, err := cache.NewStatusCache(cfg.RedisURL, cfg.StatusCacheTTL)
		if err != nil {
			log.Warn("status cache disabled", zap.Error(err))
		} else {
			defer c.Close()
			statusCache = c
			cachePinger = c
			log.Info("status cache enabled", zap.Duration("ttl", cfg.StatusCacheTTL))
		}
	}

	// Initialize services
	eventSvc := service.NewEventService(store, log)
	escalationSvc := service.NewEscalationService(store, statusCache, log)

	router := handler.NewRouter(handler.RouterConfig{
		Health:                 handler.NewHealthHandler(store, cachePinger, log),
		Events:                 handler.NewEventHandler(eventSvc, log),
		Escalations:            handler.NewEscalationHandler(escalationSvc, log),
		Stream:                 handler.NewStreamHandler(eventSvc, escalationSvc, cfg.StreamPollInterval, log),
		JWTSecret:              cfg.JWTSecret,
		RateLimitRequests:      cfg.RateLimitRequests,
		RateLimitWindow:        cfg.RateLimitWindow,
		WriteRateLimitRequests: cfg.WriteRateLimitRequests,
		Logger:                 log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// openStore connects the configured event store backend.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (eventlog.Store, func(), error) {
	switch cfg.EventStore {
	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.ApplyMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("postgres event store ready", zap.String("migrations_dir", cfg.MigrationsDir))
		return pgstore.New(pool), pool.Close, nil

	case config.StoreNATS:
		client, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, nil, err
		}

		// Ensure JetStream stream exists
		streamManager := natsclient.NewStreamManager(client, natsclient.WithMaxBytes(int64(cfg.NATSStreamMaxBytes)))
		if err := streamManager.EnsureStream(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
		log.Info("jetstream event store ready", zap.String("stream", natsclient.StreamName))
		return streamManager, client.Close, nil

	default:
		log.Warn("using in-memory event store; events are lost on restart")
		return memory.New(), func() {}, nil
	}
}
