// Command ingestion starts the document intake HTTP service.
//
// The service accepts documents via POST /api/v1/documents (or a JSON array
// via POST /api/v1/documents/batch), validates them, analyzes each into a
// journal entry and publishes it to the journal topic the indexer consumes.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/middleware"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("ingestion", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Journal)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.Journal)

	h := handler.New(publisher.New(producer))
	checker := health.NewChecker()
	// Without the journal topic nothing accepted here reaches the indexer.
	checker.Register("kafka", health.Cached(health.Ping(producer.Ping, false), 15*time.Second))
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m), middleware.Timeout(cfg.Server.WriteTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
