// Command api starts the PromptVault REST service.
//
// It serves the public prompt listing and fuzzy search, owner-scoped prompt
// writes, the copy counter, the waitlist and the server-rendered explore
// page. Listings are cached in Redis, search runs over an in-memory index
// of the public prompts, and analytics events are published to Kafka.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml]
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics/collector"
	apihandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/cache"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/catalog"
	prompthandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/handler"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/store"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/waitlist"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/promptvault/pkg/redis"
)

// indexMaxAge bounds how long an index is served when no change notice
// arrives, e.g. while Kafka is unreachable.
const indexMaxAge = 5 * time.Minute

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
		slog.Error("api service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("api service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting api service",
		"port", cfg.Server.Port,
		"analytics_url", cfg.Analytics.URL,
		"kafka_brokers", cfg.Kafka.Brokers,
	)

	verifier, err := token.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	opts, err := search.OptionsFromConfig(cfg.Search.Weights, cfg.Search.Threshold, cfg.Search.MinMatchLength)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	db, err := postgres.Connect(ctx, cfg.Postgres, 5)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	slog.Info("connected to postgres")

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping, true))

	// Redis is optional: without it listings go straight to Postgres.
	var listings *cache.ListingCache
	rdb, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, listing cache disabled", "error", err)
	} else {
		defer rdb.Close()
		listings = cache.New(rdb, cfg.Redis.CacheTTL, m)
		checker.Register("redis", health.PingCheck(rdb.Ping, false))
	}

	eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer eventProducer.Close()
	noticeProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer noticeProducer.Close()

	prompts := store.New(db)
	catalogOpts := []catalog.Option{catalog.WithPublisher(noticeProducer), catalog.WithMetrics(m)}
	if listings != nil {
		catalogOpts = append(catalogOpts, catalog.WithListingCache(listings))
	}
	cat := catalog.New(prompts, opts, indexMaxAge, catalogOpts...)
	if err := cat.Warm(ctx); err != nil {
		slog.Warn("initial index build failed", "error", err)
	}
	checker.Register("search-index", health.PingCheck(cat.Warm, false))

	events := analytics.NewCollector(eventProducer, cfg.Analytics.BufferSize)
	copies := collector.NewBatchCollector(eventProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)

	handlerOpts := []prompthandler.Option{
		prompthandler.WithEvents(events),
		prompthandler.WithCopyTracker(copies),
		prompthandler.WithMetrics(m),
	}
	if listings != nil {
		handlerOpts = append(handlerOpts, prompthandler.WithListings(listings))
	}
	if cfg.Tracing.Enabled {
		handlerOpts = append(handlerOpts, prompthandler.WithTraceSampleRate(cfg.Tracing.SampleRate))
	}
	promptHandler := prompthandler.New(prompts, cat, cfg.Search, handlerOpts...)

	keys := apikey.NewValidator(db)
	apiHandler, err := apihandler.New(apihandler.Config{
		AnalyticsURL:  cfg.Analytics.URL,
		ExploreLimit:  cfg.Search.MaxResults,
		SnippetLength: cfg.Search.SnippetLength,
		Categories:    prompt.Categories,
	}, keys, cat)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter
	if cfg.Auth.RateLimitStore == "redis" && rdb != nil {
		limiter = ratelimit.NewRedis(rdb, time.Minute)
	} else {
		mem := ratelimit.NewMemory(time.Minute)
		defer mem.Close()
		limiter = mem
	}

	chain := router.New(router.Deps{
		Prompts:        promptHandler,
		API:            apiHandler,
		Waitlist:       waitlist.NewHandler(waitlist.NewStore(db)),
		Health:         checker,
		Verifier:       verifier,
		Keys:           keys,
		Limiter:        limiter,
		WriteRateLimit: cfg.Auth.WriteRateLimit,
		AllowOrigins:   cfg.Server.AllowOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Every replica consumes change notices in its own group so each one
	// sees every notice.
	notices := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, cat.HandleNotice,
		kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-catalog-"+cat.InstanceID()))

	g, gctx := errgroup.WithContext(ctx)
	events.Start(gctx)
	copies.Start(gctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			if err := metrics.Serve(gctx, cfg.Metrics.Port); err != nil {
				slog.Warn("metrics endpoint unavailable", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := notices.Start(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("change notice consumer stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("api service listening", "addr", server.Addr)
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
		events.Close()
		copies.Close()
		return nil
	})
	return g.Wait()
}
