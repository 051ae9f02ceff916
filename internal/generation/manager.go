package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
)

// Manager holds the generation serving queries. Readers take a reference
// with Acquire; Reload swaps in a newly published generation without
// blocking them.
type Manager struct {
	cfg     config.IndexConfig
	metrics *metrics.Metrics
	current atomic.Pointer[Generation]
	mu      sync.Mutex
	onSwap  []func(*Manifest)
	logger  *slog.Logger
}

// NewManager creates a manager over cfg.Root. m may be nil.
func NewManager(cfg config.IndexConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "generation-manager", "root", cfg.Root),
	}
}

// Acquire returns the current generation with a reference taken. The
// caller must Release it.
func (m *Manager) Acquire() (*Generation, error) {
	for {
		g := m.current.Load()
		if g == nil {
			return nil, fmt.Errorf("%w: no generation loaded", apperrors.ErrIndexNotReady)
		}
		if g.acquire() {
			return g, nil
		}
		// lost a race with a swap; the replacement is already stored
		if m.current.Load() == g {
			return nil, fmt.Errorf("%w: generation %s is closing", apperrors.ErrIndexNotReady, g.name)
		}
	}
}

// OnSwap registers fn to run after every successful swap, whichever path
// triggered the reload.
func (m *Manager) OnSwap(fn func(*Manifest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwap = append(m.onSwap, fn)
}

// Current returns the manifest being served, or nil.
func (m *Manager) Current() *Manifest {
	if g := m.current.Load(); g != nil {
		return g.manifest
	}
	return nil
}

// Reload opens the generation named by CURRENT if it differs from the one
// being served. A generation that fails verification is never swapped in;
// the old one keeps serving.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	name, err := ReadCurrent(m.cfg.Root)
	if err != nil {
		return false, err
	}
	old := m.current.Load()
	if old != nil && old.name == name {
		return false, nil
	}

	start := time.Now()
	g, err := Open(filepath.Join(m.cfg.Root, name), m.cfg)
	if err != nil {
		m.observeSwap("failed")
		m.logger.Error("generation rejected", "generation", name, "error", err)
		return false, fmt.Errorf("opening %s: %w", name, err)
	}
	m.current.Store(g)
	if old != nil {
		old.Release()
	}
	m.observeSwap("ok")
	if m.metrics != nil {
		m.metrics.ActiveGeneration.Set(float64(g.manifest.Sequence))
	}
	m.logger.Info("generation swapped", "generation", name, "took", time.Since(start))
	for _, fn := range m.onSwap {
		fn(g.manifest)
	}
	return true, nil
}

func (m *Manager) observeSwap(status string) {
	if m.metrics != nil {
		m.metrics.GenerationSwaps.WithLabelValues(status).Inc()
	}
}

// Watch polls CURRENT every interval until ctx is done. Index-complete
// events call Reload directly; polling covers missed events.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Reload(ctx); err != nil && !errors.Is(err, apperrors.ErrIndexNotReady) && ctx.Err() == nil {
				m.logger.Warn("generation reload failed", "error", err)
			}
		}
	}
}

// Close drops the manager's reference to the current generation.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.current.Swap(nil); g != nil {
		g.Release()
	}
}
