// Command analytics starts the analytics aggregation service.
//
// It consumes search, copy and prompt lifecycle events from Kafka,
// aggregates them in memory (query totals, latency percentiles, top and
// zero-result queries, most copied prompts), snapshots the aggregate to
// PostgreSQL and serves it at GET /api/v1/analytics. The API service
// proxies that endpoint behind an admin key.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting analytics service",
		"port", cfg.Analytics.Port,
		"topic", cfg.Kafka.Topics.AnalyticsEvents,
	)

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	// Snapshots are optional: without Postgres the aggregate starts empty
	// and lives only in memory.
	var history analytics.SnapshotLister
	var saved <-chan struct{}
	db, err := postgres.Connect(ctx, cfg.Postgres, 3)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		snapshots := aggregator.NewStore(db, cfg.Analytics.SnapshotRetain)
		if err := snapshots.Restore(ctx, agg); err != nil {
			slog.Warn("restoring analytics snapshot failed", "error", err)
		}
		history = snapshots
		saved = aggregator.RunPeriodic(ctx, snapshots, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	h := analytics.NewHandler(agg, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", h.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler("analytics"))
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("analytics consumer stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})
	err = g.Wait()
	if saved != nil {
		<-saved
	}
	return err
}
