package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/reverse"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/resilience"
)

// Registrar records generations in the generation history.
type Registrar interface {
	Record(ctx context.Context, m *generation.Manifest, path string) error
	MarkPublished(ctx context.Context, name string, at time.Time) error
}

// Engine appends incoming documents to rotating journal files and
// periodically constructs and publishes a new index generation from all of
// them.
type Engine struct {
	cfg       config.IndexerConfig
	index     config.IndexConfig
	registry  Registrar
	publisher kafka.Publisher
	metrics   *metrics.Metrics
	retry     resilience.RetryConfig
	logger    *slog.Logger

	mu      sync.Mutex
	writer  *journal.Writer
	nextSeq int64

	buildMu   sync.Mutex
	lastBuilt string
}

// Option configures optional collaborators of an Engine.
type Option func(*Engine)

func WithRegistry(r Registrar) Option { return func(e *Engine) { e.registry = r } }

// WithPublisher announces published generations on the index-complete topic.
func WithPublisher(p kafka.Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithRetry(cfg resilience.RetryConfig) Option { return func(e *Engine) { e.retry = cfg } }

func NewEngine(cfg config.IndexerConfig, index config.IndexConfig, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	if err := os.MkdirAll(index.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating index root: %w", err)
	}
	e := &Engine{
		cfg:    cfg,
		index:  index,
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	files, err := e.recoverJournals()
	if err != nil {
		return nil, err
	}
	e.logger.Info("journal recovery complete", "journals", len(files), "next_sequence", e.nextSeq)
	return e, nil
}

// recoverJournals drops unfinished journal files and picks the next
// journal sequence number.
func (e *Engine) recoverJournals() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("reading journal directory: %w", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), journal.FileSuffix+".tmp") {
			path := filepath.Join(e.cfg.JournalDir, entry.Name())
			e.logger.Warn("removing unfinished journal", "path", path)
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("removing unfinished journal: %w", err)
			}
		}
	}
	files, err := journal.List(e.cfg.JournalDir)
	if err != nil {
		return nil, err
	}
	e.nextSeq = 1
	if len(files) > 0 {
		name := strings.TrimSuffix(filepath.Base(files[len(files)-1]), journal.FileSuffix)
		seq, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected journal file %q: %w", name, err)
		}
		e.nextSeq = seq + 1
	}
	return files, nil
}

// Append writes one document to the open journal, rotating it once it
// holds RotateEntries entries.
func (e *Engine) Append(entry journal.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		path := filepath.Join(e.cfg.JournalDir, fmt.Sprintf("%012d%s", e.nextSeq, journal.FileSuffix))
		w, err := journal.NewWriter(path)
		if err != nil {
			return err
		}
		e.writer = w
		e.nextSeq++
	}
	if err := e.writer.Append(entry); err != nil {
		return fmt.Errorf("appending doc %d: %w", entry.DocID, err)
	}
	if e.metrics != nil {
		e.metrics.JournalEntriesTotal.Inc()
	}
	if e.cfg.RotateEntries > 0 && e.writer.Count() >= e.cfg.RotateEntries {
		return e.rotateLocked()
	}
	return nil
}

// Rotate closes the open journal so its entries become visible to the
// next construction.
func (e *Engine) Rotate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotateLocked()
}

func (e *Engine) rotateLocked() error {
	w := e.writer
	if w == nil {
		return nil
	}
	e.writer = nil
	if w.Count() == 0 {
		w.Discard()
		return nil
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("rotating journal: %w", err)
	}
	e.logger.Info("journal rotated", "path", w.Path(), "entries", w.Count())
	return nil
}

// Construct builds a generation from every finished journal and makes it
// current. It returns nil without building when no journal was added since
// the last construction.
func (e *Engine) Construct(ctx context.Context) (*generation.Manifest, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if err := e.Rotate(); err != nil {
		return nil, err
	}
	files, err := journal.List(e.cfg.JournalDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 || files[len(files)-1] == e.lastBuilt {
		return nil, nil
	}

	start := time.Now()
	m, err := e.construct(ctx, files)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	if e.metrics != nil {
		e.metrics.ConstructionsTotal.WithLabelValues(status).Inc()
		if err == nil {
			e.metrics.ConstructionDuration.Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		return nil, err
	}
	e.lastBuilt = files[len(files)-1]
	return m, nil
}

func (e *Engine) construct(ctx context.Context, files []string) (*generation.Manifest, error) {
	pre := reverse.NewPreindex()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := journal.ForEach(path, func(entry journal.Entry) error {
			pre.Add(entry)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("reading journal: %w", err)
		}
	}
	e.logger.Info("journals loaded",
		"journals", len(files),
		"documents", pre.DocCount(),
		"postings", pre.PostingCount(),
		logger.Bytes("preindex_size", pre.Size()),
	)

	m, err := generation.Build(ctx, e.index.Root, generation.BuildInput{
		BlockSize: e.index.BlockSize,
		Documents: pre.DocCount(),
		Terms:     pre.Snapshot(),
	})
	if err != nil {
		return nil, err
	}
	path := filepath.Join(e.index.Root, m.Name)
	e.bookkeep(ctx, "record generation", func(ctx context.Context) error {
		return e.registry.Record(ctx, m, path)
	})

	if err := generation.Publish(e.index.Root, m.Name); err != nil {
		return nil, err
	}
	publishedAt := time.Now().UTC()
	e.logger.Info("generation published", "generation", m.Name, "documents", m.Documents)

	e.bookkeep(ctx, "mark generation published", func(ctx context.Context) error {
		return e.registry.MarkPublished(ctx, m.Name, publishedAt)
	})
	e.announce(ctx, generation.Event{
		Generation:  m.Name,
		Sequence:    m.Sequence,
		Path:        path,
		Documents:   m.Documents,
		PublishedAt: publishedAt,
	})

	removed, err := generation.Prune(e.index.Root, e.index.KeepGenerations)
	if err != nil {
		e.logger.Warn("pruning old generations failed", "error", err)
	} else if len(removed) > 0 {
		e.logger.Info("old generations pruned", "removed", removed)
	}
	return m, nil
}

// bookkeep runs a registry write with retries. The registry is history,
// not the source of truth, so a failure is logged and construction goes on.
func (e *Engine) bookkeep(ctx context.Context, name string, fn func(context.Context) error) {
	if e.registry == nil {
		return
	}
	err := resilience.Retry(ctx, name, e.retry, func() error { return fn(ctx) })
	if err != nil {
		e.logger.Error("generation registry update failed", "operation", name, "error", err)
	}
}

// announce publishes the index-complete event. Searchers also poll CURRENT,
// so a lost event only delays the swap.
func (e *Engine) announce(ctx context.Context, ev generation.Event) {
	if e.publisher == nil {
		return
	}
	err := resilience.Retry(ctx, "publish index-complete", e.retry, func() error {
		return e.publisher.Publish(ctx, kafka.Event{Key: ev.Generation, Value: ev})
	})
	if err != nil {
		e.logger.Error("index-complete event not delivered", "generation", ev.Generation, "error", err)
	}
}

// StartFlushLoop rotates the journal every FlushInterval and constructs a
// generation every ConstructInterval until ctx is done.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	flush := time.NewTicker(e.cfg.FlushInterval)
	construct := time.NewTicker(e.cfg.ConstructInterval)
	go func() {
		defer flush.Stop()
		defer construct.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, rotating journal")
				if err := e.Rotate(); err != nil {
					e.logger.Error("final rotation failed", "error", err)
				}
				return
			case <-flush.C:
				if err := e.Rotate(); err != nil {
					e.logger.Error("periodic rotation failed", "error", err)
				}
			case <-construct.C:
				if _, err := e.Construct(ctx); err != nil && !errors.Is(err, context.Canceled) {
					e.logger.Error("periodic construction failed", "error", err)
				}
			}
		}
	}()
}

// Close rotates the open journal.
func (e *Engine) Close() error {
	return e.Rotate()
}
