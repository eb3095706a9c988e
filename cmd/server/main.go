// Command server runs the concordance HTTP service: decision management,
// text ingestion and indexing, and word/phrase/group search over the
// PostgreSQL-backed positional index.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/courttext/concordance/internal/ingest"
	"github.com/courttext/concordance/internal/search"
	"github.com/courttext/concordance/internal/server"
	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/pkg/config"
	"github.com/courttext/concordance/pkg/health"
	"github.com/courttext/concordance/pkg/kafka"
	"github.com/courttext/concordance/pkg/logger"
	"github.com/courttext/concordance/pkg/metrics"
	"github.com/courttext/concordance/pkg/postgres"
	"github.com/courttext/concordance/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	st := store.New(pg, cfg.Ingest)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	// Redis is optional: without it every search goes straight to Postgres.
	var cache *search.ResultCache
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cache = search.NewResultCache(redisClient, cfg.Redis.CacheTTL, m)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DecisionIndexed)
	defer producer.Close()

	engine := search.New(search.NewStoreAdapter(st), cache, m)
	indexer := ingest.New(st, producer, m, cfg.Ingest.MaxTextBytes)

	// Indexed events drive cache invalidation so stale windows never outlive
	// a re-index by more than the consumer lag.
	if cache != nil {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DecisionIndexed, func(ctx context.Context, key, value []byte) error {
			event, err := kafka.DecodeJSON[ingest.IndexedEvent](value)
			if err != nil {
				return err
			}
			return cache.InvalidateDecision(ctx, event.DecisionID)
		})
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("indexed-event consumer stopped", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := st.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	handler := server.New(st, engine, indexer, cfg.Search)
	router := server.NewRouter(handler, checker, m, cfg.Server.WriteTimeout)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown error", "error", err)
		}
	}
	log.Info("server stopped")
}
