package longarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetRange(t *testing.T) {
	a := New(8)
	for i := int64(0); i < 8; i++ {
		a.Set(i, i*10-20)
	}
	assert.Equal(t, int64(8), a.Size())
	assert.Equal(t, int64(-20), a.Get(0))
	assert.Equal(t, int64(50), a.Get(7))

	r := a.Range(2, 5)
	assert.Equal(t, int64(3), r.Size())
	assert.Equal(t, int64(0), r.Get(0))
	r.Set(0, 99)
	assert.Equal(t, int64(99), a.Get(2), "range shares backing bytes")

	a.Fill(5, 8, MaxKey)
	assert.Equal(t, MaxKey, a.Get(6))
}

func TestWrapIgnoresTrailingBytes(t *testing.T) {
	a := Wrap(make([]byte, 19))
	assert.Equal(t, int64(2), a.Size())
}

func TestBinarySearchN(t *testing.T) {
	// (key, payload) pairs
	a := FromValues(2, 20, 4, 40, 6, 60, 8, 80)

	pos, ok := a.BinarySearchN(2, 6, 0, 8)
	require.True(t, ok)
	assert.Equal(t, int64(4), pos)
	assert.Equal(t, int64(60), a.Get(pos+1))

	pos, ok = a.BinarySearchN(2, 5, 0, 8)
	assert.False(t, ok)
	assert.Equal(t, int64(4), pos)

	_, ok = a.BinarySearchN(2, 9, 0, 8)
	assert.False(t, ok)
}

func TestBinarySearchUpperBound(t *testing.T) {
	a := FromValues(10, 20, 30, MaxKey)
	tests := []struct {
		key  int64
		want int64
	}{
		{5, 0},
		{10, 0},
		{11, 1},
		{30, 2},
		{31, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.BinarySearchUpperBound(tt.key, 0, 4), "key %d", tt.key)
	}
}

func TestRetainNAndRejectN(t *testing.T) {
	a := FromValues(3, 5, 7, 11, 13)

	buf := BufferOf(1, 3, 4, 5, 9, 11, 12, 13)
	a.RetainN(buf, 1, MaxKey, 0, 5)
	buf.FinalizeFiltering()
	assert.Equal(t, []int64{3, 5, 11, 13}, buf.Copy())

	buf = BufferOf(1, 3, 4, 5, 9, 11, 12, 13)
	a.RejectN(buf, 1, MaxKey, 0, 5)
	// values past the array tail stay unvisited; the caller decides them
	buf.RetainAll()
	buf.FinalizeFiltering()
	assert.Equal(t, []int64{1, 4, 9, 12}, buf.Copy())
}

func TestRetainNStopsAtBoundary(t *testing.T) {
	a := FromValues(3, 5, 7)
	buf := BufferOf(3, 5, 7, 9)
	a.RetainN(buf, 1, 5, 0, 3)
	assert.Equal(t, int64(7), buf.CurrentValue())
}
