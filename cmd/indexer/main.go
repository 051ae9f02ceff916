package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	constructOnce := flag.Bool("construct", false, "construct one generation from the journals on disk and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"journal_dir", cfg.Indexer.JournalDir,
		"index_root", cfg.Index.Root,
		"block_size", cfg.Index.BlockSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("indexer", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	opts := []indexer.Option{indexer.WithMetrics(m)}
	checker := health.NewChecker()

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		registry, err := generation.NewRegistry(ctx, db)
		if err != nil {
			slog.Error("failed to prepare generation registry", "error", err)
			os.Exit(1)
		}
		if latest, err := registry.Latest(ctx); err != nil {
			slog.Warn("could not read last published generation", "error", err)
		} else if latest != "" {
			slog.Info("last published generation", "generation", latest)
		}
		opts = append(opts, indexer.WithRegistry(registry))
		checker.Register("postgres", health.Ping(db.Ping, true))
		slog.Info("generation registry enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()
	opts = append(opts, indexer.WithPublisher(producer))
	checker.Register("kafka", health.Cached(health.Ping(producer.Ping, true), 15*time.Second))

	engine, err := indexer.NewEngine(cfg.Indexer, cfg.Index, opts...)
	if err != nil {
		slog.Error("failed to create indexer engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if *constructOnce {
		manifest, err := engine.Construct(ctx)
		if err != nil {
			slog.Error("construction failed", "error", err)
			os.Exit(1)
		}
		if manifest == nil {
			slog.Info("no journals to construct from")
			return
		}
		slog.Info("generation constructed", "generation", manifest.Name, "documents", manifest.Documents)
		return
	}

	engine.StartFlushLoop(ctx)
	journalConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Journal, consumer.HandleMessage(engine), kafka.FromBeginning())
	defer journalConsumer.Close()
	go func() {
		if err := journalConsumer.Start(ctx); err != nil {
			// Entries past the failed one must not be appended out of
			// order, so the whole service stops and restarts from the
			// last committed offset.
			slog.Error("journal consumer stopped, shutting down", "error", err)
			stop()
		}
	}()
	slog.Info("indexer consuming journal entries",
		"topic", cfg.Kafka.Topics.Journal,
		"group", cfg.Kafka.ConsumerGroup,
	)

	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		name, err := generation.ReadCurrent(cfg.Index.Root)
		switch {
		case err == nil:
			return health.ComponentHealth{Status: health.StatusUp, Message: name}
		case apperrors.IsNotReady(err):
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no generation published yet"}
		default:
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("POST /api/v1/construct", func(w http.ResponseWriter, r *http.Request) {
		manifest, err := engine.Construct(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			logger.FromContext(r.Context()).Error("construction failed", "error", err)
			w.WriteHeader(apperrors.HTTPStatusCode(err))
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if manifest == nil {
			json.NewEncoder(w).Encode(map[string]string{"status": "unchanged"})
			return
		}
		json.NewEncoder(w).Encode(manifest)
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
		ReadTimeout: cfg.Server.ReadTimeout,
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

	slog.Info("indexer admin listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}
