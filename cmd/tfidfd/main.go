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
	"sync"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/analytics"
	apihandler "github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/statscache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/store"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/corpus/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults plus TF_* env when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("tfidf service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("tfidf service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting tfidf service", "port", cfg.Server.Port)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := m.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	tok, err := tokenizer.New(tokenizer.FromConfig(cfg.Tokenizer))
	if err != nil {
		return fmt.Errorf("building tokenizer: %w", err)
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening document storage: %w", err)
	}
	slog.Info("document storage ready", "driver", cfg.Storage.Driver)

	checker := health.NewChecker()

	var db *postgres.Client
	if cfg.Postgres.Host != "" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, corpus will not survive restarts", "error", err)
		} else {
			defer db.Close()
			checker.Register("postgres", health.PingCheck(db, true))
		}
	}

	var (
		docStore        corpus.DocumentStore
		collectionStore corpus.CollectionStore
	)
	if db != nil {
		s := store.New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("migrating document schema: %w", err)
		}
		docStore = s
		collectionStore = s
	}

	var backend statscache.Backend
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, stats cache is in-process only", "error", err)
		} else {
			defer redisClient.Close()
			backend = redisClient
			checker.Register("redis", health.PingCheck(redisClient, false))
		}
	}

	cacheOpts := statscache.OptionsFromConfig(cfg.Cache, cfg.Redis)
	if m != nil {
		cacheOpts.Observe = func(tier, result string) {
			m.CacheRequests.WithLabelValues(tier, result).Inc()
		}
		cacheOpts.OnBreakerChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	cache, err := statscache.New(cacheOpts, backend)
	if err != nil {
		return fmt.Errorf("creating stats cache: %w", err)
	}

	var (
		events    corpus.EventSink
		submitter apihandler.Submitter
		consumer  *kafka.Consumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusEvents)
		defer eventProducer.Close()
		collector := analytics.NewCollector(eventProducer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		events = collector

		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ingestProducer.Close()
		submitter = ingest.NewSubmitter(blobs, ingestProducer, cfg.Documents.MaxBytes)
		slog.Info("kafka enabled",
			"brokers", cfg.Kafka.Brokers,
			"corpus_events", cfg.Kafka.Topics.CorpusEvents,
			"document_ingest", cfg.Kafka.Topics.DocumentIngest,
		)
	} else {
		slog.Warn("no kafka brokers configured, corpus events and async ingest disabled")
	}

	stats := analytics.NewProcessingStats()
	engine, err := corpus.NewEngine(corpus.Options{
		Tokenizer:   tok,
		Cache:       cache,
		Store:       docStore,
		Collections: collectionStore,
		Blobs:       blobs,
		Events:      events,
		Stats:       stats,
		Metrics:     m,
		Limits:      cfg.Documents,
	})
	if err != nil {
		return fmt.Errorf("creating corpus engine: %w", err)
	}
	if _, err := engine.Rehydrate(ctx); err != nil {
		return err
	}
	checker.Register("corpus", health.ErrorCheck(engine.CheckConsistency))

	if len(cfg.Kafka.Brokers) > 0 {
		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			ingest.NewHandler(engine, blobs).HandleMessage())
	}

	deps := router.Deps{
		Handler:        apihandler.New(engine, submitter),
		Stats:          analytics.NewHandler(stats),
		Health:         checker,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Auth.Enabled {
		if db == nil {
			return errors.New("auth.enabled requires postgres for api keys")
		}
		validator := apikey.NewValidator(db)
		if err := validator.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("migrating api key schema: %w", err)
		}
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		defer limiter.Close()
		deps.Authenticator = validator
		deps.Limiter = limiter
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				slog.Error("ingest consumer stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("tfidf service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}
	wg.Wait()
	return nil
}
