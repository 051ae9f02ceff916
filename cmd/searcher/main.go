package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/redis"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	blocklistPath := flag.String("blocklist", "", "file of document IDs never to return, one per line")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_root", cfg.Index.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("searcher", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mgr := generation.NewManager(cfg.Index, m)
	defer mgr.Close()
	if _, err := mgr.Reload(ctx); err != nil {
		if !apperrors.IsNotReady(err) {
			slog.Error("failed to load index generation", "error", err)
			os.Exit(1)
		}
		slog.Warn("no index generation published yet, serving 503 until one is", "root", cfg.Index.Root)
	}
	go mgr.Watch(ctx, cfg.Search.PollInterval)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			mgr.OnSwap(func(g *generation.Manifest) {
				if err := queryCache.Invalidate(ctx); err != nil {
					slog.Warn("cache invalidation after swap failed", "generation", g.Name, "error", err)
				}
			})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	exec := executor.New(mgr, cfg.Search, m)
	if *blocklistPath != "" {
		blocked, err := loadBlocklist(*blocklistPath)
		if err != nil {
			slog.Error("failed to load blocklist", "path", *blocklistPath, "error", err)
			os.Exit(1)
		}
		exec.SetBlocklist(blocked)
		slog.Info("blocklist loaded", "documents", blocked.GetCardinality())
	}

	// Every searcher reloads on index-complete, so each needs its own group.
	host, _ := os.Hostname()
	group := fmt.Sprintf("%s-searcher-%s-%d", cfg.Kafka.ConsumerGroup, host, cfg.Server.Port)
	completeConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, func(ctx context.Context, msg kafka.Message) error {
		ev, err := kafka.DecodeJSON[generation.Event](msg.Value)
		if err != nil {
			slog.Warn("ignoring malformed index-complete event", "error", err)
			return nil
		}
		slog.Info("index-complete event received", "generation", ev.Generation)
		if _, err := mgr.Reload(ctx); err != nil {
			slog.Error("reload after index-complete failed", "generation", ev.Generation, "error", err)
		}
		return nil
	}, kafka.WithGroup(group))
	defer completeConsumer.Close()
	go func() {
		if err := completeConsumer.Start(ctx); err != nil {
			slog.Error("index-complete consumer stopped", "error", err)
		}
	}()

	if queryCache != nil {
		invalidateConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, func(ctx context.Context, msg kafka.Message) error {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("cache invalidation request failed", "error", err)
			}
			return nil
		}, kafka.WithGroup(group))
		defer invalidateConsumer.Close()
		go func() {
			if err := invalidateConsumer.Start(ctx); err != nil {
				slog.Error("cache-invalidate consumer stopped", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if cur := mgr.Current(); cur != nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%s, %d documents", cur.Name, cur.Documents)}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no generation loaded"}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, true))
	}

	h := handler.New(exec, mgr, queryCache, cfg.Search, m)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *rate.Limiter
	if cfg.Search.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Search.RateLimit), max(int(cfg.Search.RateLimit), 1))
	}
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.RateLimit(limiter),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func loadBlocklist(path string) (*roaring64.Bitmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	blocked := roaring64.New()
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseUint(text, 10, 63)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		blocked.Add(id)
	}
	return blocked, sc.Err()
}
