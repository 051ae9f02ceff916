package longarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetainRejectFinalize(t *testing.T) {
	buf := BufferOf(1, 2, 3, 4, 5, 6)
	buf.RetainWhere(func(v int64) bool { return v%2 == 0 })
	buf.FinalizeFiltering()

	assert.Equal(t, []int64{2, 4, 6}, buf.Copy())
	assert.Equal(t, 3, buf.Size())
	assert.True(t, buf.HasMore())
}

func TestRejectAllEmpties(t *testing.T) {
	buf := BufferOf(1, 2, 3)
	buf.RejectAll()
	buf.FinalizeFiltering()
	assert.True(t, buf.IsEmpty())
}

func TestSliceSharesBacking(t *testing.T) {
	buf := BufferOf(1, 2, 3, 4, 5, 6)
	s := buf.Slice(2, 6)
	s.RetainWhere(func(v int64) bool { return v > 4 })
	s.FinalizeFiltering()

	assert.Equal(t, []int64{5, 6}, s.Copy())
	assert.Equal(t, []int64{1, 2, 5, 6}, buf.Values()[:4])
}

func TestResetZeroSlots(t *testing.T) {
	buf := NewQueryBuffer(4)
	assert.True(t, buf.IsEmpty())

	buf.Reset()
	assert.Equal(t, 4, buf.Size())

	copy(buf.Slots(), []int64{7, 8})
	buf.SetSize(2)
	assert.Equal(t, []int64{7, 8}, buf.Copy())

	buf.Zero()
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, []int64{0, 0, 0, 0}, buf.Slots())
}

func TestUniq(t *testing.T) {
	buf := BufferOf(1, 1, 2, 3, 3, 3, 9)
	buf.Uniq()
	assert.Equal(t, []int64{1, 2, 3, 9}, buf.Copy())
}
