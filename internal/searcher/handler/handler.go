package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

// Generations exposes the live index generation.
type Generations interface {
	Current() *generation.Manifest
	Reload(ctx context.Context) (bool, error)
}

type Handler struct {
	exec    SearchExecutor
	gens    Generations
	cache   *cache.QueryCache
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the search API handler. queryCache and m may be nil.
func New(exec SearchExecutor, gens Generations, queryCache *cache.QueryCache, cfg config.SearchConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		exec:    exec,
		gens:    gens,
		cache:   queryCache,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/generation", h.Generation)
	mux.HandleFunc("POST /api/v1/generation/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.cfg.MaxResults)
	}

	var budget time.Duration
	if budgetStr := r.URL.Query().Get("budget_ms"); budgetStr != "" {
		ms, err := strconv.Atoi(budgetStr)
		if err != nil || ms < 1 {
			h.writeError(w, http.StatusBadRequest, "budget_ms must be a positive integer")
			return
		}
		budget = time.Duration(ms) * time.Millisecond
	}

	plan := parser.Parse(query)
	if plan.IsEmpty() {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:     query,
			Results:   []ranking.ScoredDoc{},
			TermStats: map[string]int64{},
		})
		return
	}

	ctx, trace := tracing.Start(ctx, "search", logger.RequestID(ctx))
	defer trace.Log(log)
	compute := func() (*executor.SearchResult, error) {
		return h.exec.Execute(ctx, executor.Request{Plan: plan, Limit: limit, Budget: budget})
	}
	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, limit, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search execution failed", "query", query, "status", status, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}

	elapsed := time.Since(start)
	if h.metrics != nil {
		label := "miss"
		switch {
		case h.cache == nil:
			label = "disabled"
		case cacheHit:
			label = "hit"
		}
		h.metrics.QueryLatency.WithLabelValues(label).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", query,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"degraded", result.Degraded,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	w.Header().Set("X-Cache", strconv.FormatBool(cacheHit))
	h.writeJSON(w, http.StatusOK, result)
}

// Generation reports the manifest of the generation being served.
func (h *Handler) Generation(w http.ResponseWriter, r *http.Request) {
	m := h.gens.Current()
	if m == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperrors.ErrIndexNotReady.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// Reload switches to the generation named by CURRENT if it changed.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	swapped, err := h.gens.Reload(r.Context())
	if err != nil {
		h.logger.Error("generation reload failed", "error", err)
		status := apperrors.HTTPStatusCode(err)
		h.writeError(w, status, err.Error())
		return
	}
	resp := map[string]any{"swapped": swapped}
	if m := h.gens.Current(); m != nil {
		resp["generation"] = m.Name
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
