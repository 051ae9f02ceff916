package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func result(q string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:      q,
		Generation: "gen-00000001",
		TotalHits:  1,
		Results:    []ranking.ScoredDoc{{DocID: 7, Score: 1.5}},
		TermStats:  map[string]int64{"go": 1},
	}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result("go"), nil
	}
	res, hit, err := c.GetOrCompute(ctx, parser.Parse("go rust"), 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(7), res.Results[0].DocID)

	// Same terms in a different order share the entry.
	res, hit, err = c.GetOrCompute(ctx, parser.Parse("Rust +go"), 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "gen-00000001", res.Generation)
	assert.Equal(t, 1, calls)

	_, hit, err = c.GetOrCompute(ctx, parser.Parse("go rust"), 20, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestDegradedResultsAreNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{}, nil)
	r := result("go")
	r.Degraded = true
	c.Set(context.Background(), parser.Parse("go"), 10, r)
	assert.Zero(t, store.len())
}

func TestComputeErrorIsReturned(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{}, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), parser.Parse("go"), 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{}, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("go"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, _, err := c.GetOrCompute(context.Background(), parser.Parse("go"), 10, compute)
			assert.NoError(t, err)
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte("x")
	c := New(store, config.RedisConfig{}, nil)
	ctx := context.Background()
	c.Set(ctx, parser.Parse("go"), 10, result("go"))
	c.Set(ctx, parser.Parse("rust"), 10, result("rust"))
	require.Equal(t, 3, store.len())

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, 1, store.len())
	_, ok := c.Get(ctx, parser.Parse("go"), 10)
	assert.False(t, ok)
}

func TestStoreFailuresOpenBreaker(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, config.RedisConfig{}, nil)
	ctx := context.Background()

	for range 5 {
		_, ok := c.Get(ctx, parser.Parse("go"), 10)
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	res, hit, err := c.GetOrCompute(ctx, parser.Parse("go"), 10, func() (*executor.SearchResult, error) {
		return result("go"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "go", res.Query)

	err = c.Invalidate(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
