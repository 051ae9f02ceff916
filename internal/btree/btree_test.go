package btree

import (
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/mmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallCtx uses 8-word pages so that modest trees get several layers.
func smallCtx(entrySize int) Context {
	return MustContext(5, entrySize, 64)
}

// buildTree writes keys (with payload words key*10+j) at offset and opens it.
func buildTree(t *testing.T, ctx Context, offset int64, keys []int64) *Reader {
	t.Helper()
	size, err := ctx.CalculateSize(int64(len(keys)))
	require.NoError(t, err)
	arr := longarray.New(offset + size)

	w := NewWriter(arr, ctx)
	written, err := w.Write(offset, int64(len(keys)), func(data longarray.LongArray) error {
		sz := int64(ctx.EntrySize)
		for i, k := range keys {
			data.Set(int64(i)*sz, k)
			for j := int64(1); j < sz; j++ {
				data.Set(int64(i)*sz+j, k*10+j)
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, written, size)

	r, err := Open(arr, ctx, offset)
	require.NoError(t, err)
	return r
}

func sequence(n int, mul, add int64) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i)*mul + add
	}
	return keys
}

func TestNumIndexLayers(t *testing.T) {
	ctx := MustContext(3, 2, 64)
	ps := ctx.PageSize()
	wsq := ps * ps

	tests := []struct {
		n    int64
		want int
	}{
		{0, 0},
		{ps / 2, 0},
		{ps/2 + 1, 1},
		{ps, 1},
		{ps + 1, 2},
		{wsq - 1, 2},
		{wsq, 2},
		{wsq + 1, 3},
	}
	for _, tt := range tests {
		got, err := ctx.NumIndexLayers(tt.n)
		require.NoError(t, err, "n=%d", tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	_, err := ctx.NumIndexLayers(wsq*ps + 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMakeHeader(t *testing.T) {
	ctx := smallCtx(2)

	h, err := ctx.MakeHeader(1024, ctx.PageSize()/2)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Layers)
	assert.Equal(t, int64(1024+3), h.IndexOffset)
	assert.Equal(t, int64(1024+3), h.DataOffset)

	h, err = ctx.MakeHeader(10, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Layers)
	assert.Equal(t, int64(16), h.IndexOffset)
	assert.Zero(t, h.IndexOffset%ctx.PageSize())
	assert.Zero(t, h.DataOffset%ctx.PageSize())
	assert.GreaterOrEqual(t, h.DataOffset, h.IndexOffset)
}

func TestEmptyTree(t *testing.T) {
	ctx := smallCtx(2)
	r := buildTree(t, ctx, 0, nil)
	assert.Zero(t, r.NumEntries())
	assert.Equal(t, int64(-1), r.FindEntry(5))
	assert.Equal(t, []int64{0, 0}, r.QueryData([]int64{1, 2}, 1))

	buf := longarray.BufferOf(1, 2, 3)
	require.NoError(t, r.RetainEntries(buf, nil))
	buf.FinalizeFiltering()
	assert.True(t, buf.IsEmpty())

	buf = longarray.BufferOf(1, 2, 3)
	require.NoError(t, r.RejectEntries(buf, nil))
	buf.FinalizeFiltering()
	assert.Equal(t, []int64{1, 2, 3}, buf.Copy())
}

func TestFindEveryKeyAllSizes(t *testing.T) {
	for _, entrySize := range []int{1, 2, 3} {
		ctx := smallCtx(entrySize)
		for n := 0; n <= 600; n += 1 + n/40 {
			keys := sequence(n, 3, 1)
			r := buildTree(t, ctx, 7, keys)
			require.Equal(t, int64(n), r.NumEntries())

			for _, k := range keys {
				pos := r.FindEntry(k)
				require.GreaterOrEqual(t, pos, int64(0), "size=%d n=%d key=%d", entrySize, n, k)
				require.Equal(t, k, r.Data().Get(pos))
				require.Equal(t, int64(-1), r.FindEntry(k+1), "size=%d n=%d key=%d", entrySize, n, k+1)
			}
			require.Equal(t, int64(-1), r.FindEntry(0))
			require.Equal(t, int64(-1), r.FindEntry(int64(n)*3+10))
		}
	}
}

func TestQueryData(t *testing.T) {
	for _, n := range []int{3, 8, 64, 65, 300, 513} {
		ctx := smallCtx(3)
		keys := sequence(n, 2, 0)
		r := buildTree(t, ctx, 0, keys)

		query := make([]int64, 0, 2*n)
		want1 := make([]int64, 0, 2*n)
		want2 := make([]int64, 0, 2*n)
		for _, k := range keys {
			query = append(query, k, k+1)
			want1 = append(want1, k*10+1, 0)
			want2 = append(want2, k*10+2, 0)
		}
		assert.Equal(t, want1, r.QueryData(query, 1), "n=%d", n)
		assert.Equal(t, want2, r.QueryData(query, 2), "n=%d", n)
		assert.Equal(t, keys, r.QueryData(keys, 0), "n=%d", n)
	}
}

func TestLookupDataReportsPresence(t *testing.T) {
	r := buildTree(t, smallCtx(2), 0, sequence(100, 2, 0))

	vals, found := r.LookupData([]int64{0, 1, 2, 197, 198, 500}, 0)
	assert.Equal(t, []int64{0, 0, 2, 0, 198, 0}, vals)
	assert.Equal(t, []bool{true, false, true, false, true, false}, found)

	vals, found = r.LookupData(nil, 1)
	assert.Empty(t, vals)
	assert.Empty(t, found)
}

func TestFilterSettlesValuesPastLastKey(t *testing.T) {
	for _, ctx := range []Context{smallCtx(1), smallCtx(3), MustContext(DefaultMaxLayers, 2, DefaultBlockSize)} {
		keys := sequence(300, 2, 0)
		r := buildTree(t, ctx, 0, keys)

		cand := append([]int64{4, 5, 598}, sequence(2000, 1, 599)...)
		buf := longarray.BufferOf(cand...)
		require.NoError(t, r.RetainEntries(buf, nil))
		buf.FinalizeFiltering()
		assert.Equal(t, []int64{4, 598}, buf.Copy(), "%s", ctx)

		buf = longarray.BufferOf(cand...)
		require.NoError(t, r.RejectEntries(buf, nil))
		buf.FinalizeFiltering()
		want := append([]int64{5}, sequence(2000, 1, 599)...)
		assert.Equal(t, want, buf.Copy(), "%s", ctx)
	}
}

func TestFilterStopsWhenBudgetExhausted(t *testing.T) {
	r := buildTree(t, smallCtx(1), 0, sequence(600, 3, 0))
	cand := sequence(500, 3, 0)

	buf := longarray.BufferOf(cand...)
	err := r.RetainEntries(buf, budget.New(0))
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.True(t, apperrors.IsTimeout(err))

	buf = longarray.BufferOf(cand...)
	assert.ErrorIs(t, r.RejectEntries(buf, budget.New(0)), apperrors.ErrTimeout)

	buf = longarray.BufferOf(cand...)
	require.NoError(t, r.RetainEntries(buf, budget.Unlimited()))
	buf.FinalizeFiltering()
	assert.Equal(t, cand, buf.Copy())
}

func TestRetainPrimesFromOdds(t *testing.T) {
	primes := []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71, 73, 79, 83, 89, 97}
	for _, entrySize := range []int{1, 2} {
		for _, ctx := range []Context{smallCtx(entrySize), MustContext(DefaultMaxLayers, entrySize, DefaultBlockSize)} {
			r := buildTree(t, ctx, 0, primes)

			buf := longarray.BufferOf(sequence(50, 2, 1)...)
			require.NoError(t, r.RetainEntries(buf, nil))
			buf.FinalizeFiltering()
			assert.Equal(t, primes[1:], buf.Copy(), "%s", ctx)

			buf = longarray.BufferOf(sequence(50, 2, 1)...)
			require.NoError(t, r.RejectEntries(buf, nil))
			buf.FinalizeFiltering()
			var composites []int64
			for _, v := range sequence(50, 2, 1) {
				if !slices.Contains(primes, v) {
					composites = append(composites, v)
				}
			}
			assert.Equal(t, composites, buf.Copy(), "%s", ctx)
		}
	}
}

func TestRetainRejectMatchReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, entrySize := range []int{1, 2, 3} {
		ctx := smallCtx(entrySize)
		for _, n := range []int{0, 1, 4, 9, 64, 65, 200, 512, 600} {
			keySet := map[int64]bool{}
			keys := randomSorted(rng, n, 5000)
			for _, k := range keys {
				keySet[k] = true
			}
			r := buildTree(t, ctx, 3, keys)

			for range 5 {
				cand := randomSorted(rng, rng.IntN(400), 5200)
				var wantIn, wantOut []int64
				for _, c := range cand {
					if keySet[c] {
						wantIn = append(wantIn, c)
					} else {
						wantOut = append(wantOut, c)
					}
				}

				buf := longarray.BufferOf(cand...)
				require.NoError(t, r.RetainEntries(buf, nil))
				buf.FinalizeFiltering()
				assert.Equal(t, nilIfEmpty(wantIn), nilIfEmpty(buf.Copy()), "retain size=%d n=%d", entrySize, n)

				buf = longarray.BufferOf(cand...)
				require.NoError(t, r.RejectEntries(buf, nil))
				buf.FinalizeFiltering()
				assert.Equal(t, nilIfEmpty(wantOut), nilIfEmpty(buf.Copy()), "reject size=%d n=%d", entrySize, n)
			}
		}
	}
}

func randomSorted(rng *rand.Rand, n int, limit int64) []int64 {
	set := map[int64]struct{}{}
	for len(set) < n {
		set[rng.Int64N(limit)] = struct{}{}
	}
	out := make([]int64, 0, n)
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func nilIfEmpty(v []int64) []int64 {
	if len(v) == 0 {
		return nil
	}
	return v
}

func TestWriterRejectsUnsortedKeys(t *testing.T) {
	ctx := smallCtx(1)
	arr := longarray.New(64)
	_, err := NewWriter(arr, ctx).Write(0, 3, func(data longarray.LongArray) error {
		data.Set(0, 5)
		data.Set(1, 5)
		data.Set(2, 6)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestWriterRejectsShortArray(t *testing.T) {
	ctx := smallCtx(1)
	_, err := NewWriter(longarray.New(4), ctx).Write(0, 10, func(longarray.LongArray) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOpenCorruptHeader(t *testing.T) {
	ctx := smallCtx(2)
	keys := sequence(100, 1, 0)

	tests := []struct {
		name   string
		mutate func(arr longarray.LongArray)
	}{
		{"data before index", func(arr longarray.LongArray) { arr.Set(2, arr.Get(1)-1) }},
		{"index inside header", func(arr longarray.LongArray) { arr.Set(1, 1) }},
		{"wrong layer count", func(arr longarray.LongArray) { arr.Set(0, 1<<32|100) }},
		{"entries past end", func(arr longarray.LongArray) { arr.Set(0, 3<<32|400) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := ctx.CalculateSize(int64(len(keys)))
			require.NoError(t, err)
			arr := longarray.New(size)
			_, err = NewWriter(arr, ctx).Write(0, int64(len(keys)), func(data longarray.LongArray) error {
				for i, k := range keys {
					data.Set(int64(i)*2, k)
				}
				return nil
			})
			require.NoError(t, err)

			tt.mutate(arr)
			_, err = Open(arr, ctx, 0)
			assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
		})
	}

	_, err := Open(longarray.New(2), ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestOpenFile(t *testing.T) {
	ctx := MustContext(DefaultMaxLayers, 2, DefaultBlockSize)
	path := filepath.Join(t.TempDir(), "words.dat")
	keys := sequence(5000, 7, 3)

	size, err := ctx.CalculateSize(int64(len(keys)))
	require.NoError(t, err)
	m, err := mmap.Create(path, size*longarray.WordSize)
	require.NoError(t, err)
	written, err := NewWriter(longarray.Wrap(m.Bytes()), ctx).Write(0, int64(len(keys)), func(data longarray.LongArray) error {
		for i, k := range keys {
			data.Set(int64(i)*2, k)
			data.Set(int64(i)*2+1, -k)
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, m.CloseTruncate(written*longarray.WordSize))

	r, err := OpenFile(path, ctx)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(len(keys)), r.NumEntries())
	assert.Equal(t, 2, r.Header().Layers)
	assert.Equal(t, []int64{-3, 0, -10}, r.QueryData([]int64{3, 4, 10}, 1))
}

func TestOpenFileMissing(t *testing.T) {
	r, err := OpenFile(filepath.Join(t.TempDir(), "prio-words.dat"), smallCtx(2))
	require.NoError(t, err)
	assert.Zero(t, r.NumEntries())
	assert.Equal(t, int64(-1), r.FindEntry(1))
	require.NoError(t, r.Close())
}

func BenchmarkRetainEntries(b *testing.B) {
	ctx := MustContext(DefaultMaxLayers, 3, DefaultBlockSize)
	keys := sequence(200_000, 3, 0)
	size, _ := ctx.CalculateSize(int64(len(keys)))
	arr := longarray.New(size)
	_, err := NewWriter(arr, ctx).Write(0, int64(len(keys)), func(data longarray.LongArray) error {
		for i, k := range keys {
			data.Set(int64(i)*3, k)
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
	r, err := Open(arr, ctx, 0)
	if err != nil {
		b.Fatal(err)
	}
	cand := sequence(20_000, 7, 0)
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		buf := longarray.BufferOf(cand...)
		_ = r.RetainEntries(buf, nil)
		buf.FinalizeFiltering()
	}
}
