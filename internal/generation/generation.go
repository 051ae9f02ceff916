package generation

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/positions"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/reverse"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
)

// Generation is an opened, verified generation. It starts with one
// reference owned by whoever opened it; the mappings are released when the
// last reference is dropped.
type Generation struct {
	name      string
	dir       string
	manifest  *Manifest
	full      *reverse.Reader
	priority  *reverse.Reader
	positions *positions.Reader
	refs      atomic.Int64
	closed    atomic.Bool
	logger    *slog.Logger
}

// Open verifies and maps the generation in dir.
func Open(dir string, cfg config.IndexConfig) (*Generation, error) {
	logger := slog.Default().With("component", "generation", "dir", dir)
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if err := Verify(dir, m, cfg.VerifyChecksums); err != nil {
		return nil, err
	}
	ctxs, err := reverse.NewContexts(m.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("manifest block size: %w", err)
	}

	g := &Generation{
		name:     filepath.Base(dir),
		dir:      dir,
		manifest: m,
		logger:   logger,
	}
	if g.full, err = reverse.OpenFull(dir, ctxs); err != nil {
		return nil, err
	}
	if g.priority, err = reverse.OpenPriority(dir, ctxs); err != nil {
		g.full.Close()
		return nil, err
	}
	if g.positions, err = positions.Open(filepath.Join(dir, reverse.PositionsFile), cfg.PositionsBackend); err != nil {
		g.full.Close()
		g.priority.Close()
		return nil, err
	}
	g.refs.Store(1)
	logger.Info("generation opened",
		"generation", g.name,
		"documents", m.Documents,
		"terms", m.Terms,
		"positions_backend", g.positions.Backend(),
	)
	return g, nil
}

func (g *Generation) Name() string                 { return g.name }
func (g *Generation) Dir() string                  { return g.dir }
func (g *Generation) Manifest() *Manifest          { return g.manifest }
func (g *Generation) Full() *reverse.Reader        { return g.full }
func (g *Generation) Priority() *reverse.Reader    { return g.priority }
func (g *Generation) Positions() *positions.Reader { return g.positions }

// Closed reports whether the mappings have been released.
func (g *Generation) Closed() bool { return g.closed.Load() }

// acquire adds a reference unless the generation is already draining to
// zero.
func (g *Generation) acquire() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference and unmaps the files once none remain.
func (g *Generation) Release() {
	n := g.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		g.logger.Error("generation released more often than acquired", "generation", g.name)
		return
	}
	if err := g.close(); err != nil {
		g.logger.Error("closing generation", "generation", g.name, "error", err)
	}
}

func (g *Generation) close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.logger.Info("generation released", "generation", g.name)
	return errors.Join(g.full.Close(), g.priority.Close(), g.positions.Close())
}
