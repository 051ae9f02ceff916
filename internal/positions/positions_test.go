package positions

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		length int
		offset int64
	}{
		{0, 0},
		{1, 0},
		{0, 1},
		{MaxLength - 1, MaxOffset - 1},
		{12, 1 << 40},
		{MaxLength - 1, 0},
	}
	for _, tt := range tests {
		word, err := Encode(tt.length, tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.length, DecodeSize(word))
		assert.Equal(t, tt.offset, DecodeOffset(word))
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for range 10_000 {
		length := rng.IntN(MaxLength)
		offset := rng.Int64N(MaxOffset)
		word, err := Encode(length, offset)
		require.NoError(t, err)
		require.Equal(t, length, DecodeSize(word))
		require.Equal(t, offset, DecodeOffset(word))
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	_, err := Encode(1, MaxOffset)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = Encode(1, -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = Encode(MaxLength, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = Encode(-1, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSequenceRoundTrip(t *testing.T) {
	pos := []int32{0, 1, 5, 200, 70_000, 1 << 30}
	rec, err := EncodeSequence(0x81, pos)
	require.NoError(t, err)

	td := NewTermData(rec)
	assert.Equal(t, byte(0x81), td.Flags())
	got, err := td.Positions()
	require.NoError(t, err)
	assert.Equal(t, pos, got)
}

func TestSequenceRejectsUnordered(t *testing.T) {
	_, err := EncodeSequence(0, []int32{3, 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = EncodeSequence(0, []int32{5, 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = EncodeSequence(0, []int32{-1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPositionsOfMalformedRecord(t *testing.T) {
	_, err := NewTermData([]byte{0, 0x80}).Positions()
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func writeFixture(t *testing.T) (string, [][]int32, []int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.dat")
	w, err := NewWriter(path)
	require.NoError(t, err)

	lists := [][]int32{
		{1, 2, 3},
		{10},
		{4, 8, 15, 16, 23, 42},
		{100, 1000, 10000},
	}
	words := make([]int64, len(lists))
	for i, l := range lists {
		words[i], err = w.Add(byte(i+1), l)
		require.NoError(t, err)
		require.NotZero(t, words[i])
	}
	require.NoError(t, w.Close())
	return path, lists, words
}

func TestGetTermDataBackends(t *testing.T) {
	path, lists, words := writeFixture(t)

	// sparse, out of order, with a duplicate
	query := []int64{0, words[3], 0, words[0], words[2], words[0], words[1]}
	want := [][]int32{nil, lists[3], nil, lists[0], lists[2], lists[0], lists[1]}

	for _, backend := range []string{BackendMmap, BackendPread} {
		t.Run(backend, func(t *testing.T) {
			r, err := Open(path, backend)
			require.NoError(t, err)
			defer r.Close()

			got, err := r.GetTermData(budget.New(1000), query)
			require.NoError(t, err)
			require.Len(t, got, len(query))
			for i, td := range got {
				if want[i] == nil {
					assert.Nil(t, td, "index %d", i)
					continue
				}
				require.NotNil(t, td, "index %d", i)
				pos, err := td.Positions()
				require.NoError(t, err)
				assert.Equal(t, want[i], pos, "index %d", i)
			}
		})
	}
}

func TestGetTermDataAllZero(t *testing.T) {
	path, _, _ := writeFixture(t)
	r, err := Open(path, BackendPread)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.GetTermData(budget.New(0), []int64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []*TermData{nil, nil}, got)
}

func TestGetTermDataTimesOut(t *testing.T) {
	path, _, words := writeFixture(t)
	r, err := Open(path, BackendMmap)
	require.NoError(t, err)
	defer r.Close()

	b := budget.New(1)
	time.Sleep(3 * time.Millisecond)
	got, err := r.GetTermData(b, words)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Nil(t, got)
}

func TestGetTermDataPastEnd(t *testing.T) {
	path, _, _ := writeFixture(t)
	r, err := Open(path, BackendMmap)
	require.NoError(t, err)
	defer r.Close()

	word, err := Encode(10, r.Size())
	require.NoError(t, err)
	_, err = r.GetTermData(budget.New(100), []int64{word})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestCoalesce(t *testing.T) {
	reqs := []request{
		{idx: 0, offset: 0, size: 4},
		{idx: 1, offset: 4, size: 2},
		{idx: 2, offset: 4, size: 2},
		{idx: 3, offset: 10, size: 1},
		{idx: 4, offset: 11, size: 3},
	}

	spans := coalesce(reqs, 0)
	require.Len(t, spans, 2)
	assert.Equal(t, int64(0), spans[0].offset)
	assert.Len(t, spans[0].reqs, 3)
	assert.Equal(t, 2, spans[0].iovs)
	assert.Equal(t, int64(10), spans[1].offset)
	assert.Len(t, spans[1].reqs, 2)

	spans = coalesce(reqs, 4)
	require.Len(t, spans, 1)
	assert.Len(t, spans[0].reqs, 5)
	assert.Equal(t, int64(14), spans[0].end)
	assert.Equal(t, 5, spans[0].iovs, "four records plus one gap")

	spans = coalesce(reqs, 3)
	assert.Len(t, spans, 2)
}

func TestCoalesceBoundsIovecs(t *testing.T) {
	reqs := make([]request, maxIovecs+10)
	for i := range reqs {
		reqs[i] = request{idx: i, offset: int64(i * 3), size: 1}
	}
	// every record after the first in a span needs a gap buffer too
	spans := coalesce(reqs, MaxGap)
	require.Len(t, spans, 3)
	total := 0
	for _, sp := range spans {
		assert.LessOrEqual(t, sp.iovs, maxIovecs)
		total += len(sp.reqs)
	}
	assert.Equal(t, len(reqs), total)
	assert.Len(t, spans[0].reqs, 512)
}

func TestGetTermDataReadsAcrossGaps(t *testing.T) {
	path, lists, words := writeFixture(t)
	query := []int64{words[3], 0, words[0]}

	for _, backend := range []string{BackendMmap, BackendPread} {
		t.Run(backend, func(t *testing.T) {
			r, err := Open(path, backend)
			require.NoError(t, err)
			defer r.Close()

			got, err := r.GetTermData(budget.New(1000), query)
			require.NoError(t, err)
			require.Nil(t, got[1])
			first, err := got[0].Positions()
			require.NoError(t, err)
			assert.Equal(t, lists[3], first)
			last, err := got[2].Positions()
			require.NoError(t, err)
			assert.Equal(t, lists[0], last)
		})
	}
}

func TestWriterTruncatesOversizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.dat")
	w, err := NewWriter(path)
	require.NoError(t, err)

	long := make([]int32, 40_000)
	for i := range long {
		long[i] = int32(i * 200)
	}
	word, err := w.Add(1, long)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, 1, w.Truncated)
	assert.Less(t, DecodeSize(word), MaxLength)

	r, err := Open(path, BackendMmap)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.GetTermData(budget.New(100), []int64{word})
	require.NoError(t, err)
	pos, err := got[0].Positions()
	require.NoError(t, err)
	assert.Equal(t, long[:len(pos)], pos)
}

func TestWriterSkipsEmpty(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "positions.dat"))
	require.NoError(t, err)
	word, err := w.Add(0, nil)
	require.NoError(t, err)
	assert.Zero(t, word)
	assert.Zero(t, w.Size())
	require.NoError(t, w.Close())
}
