// Package longarray provides a word-addressed view over little-endian int64
// data, usually backed by a memory-mapped index file, along with the sorted
// search and merge primitives the BTree reader is built from.
package longarray

import (
	"encoding/binary"
	"math"
)

const WordSize = 8

// LongArray addresses a byte slice as consecutive little-endian int64 words.
// It never copies the backing bytes.
type LongArray struct {
	b []byte
}

// Wrap views b as words. Trailing bytes that do not form a whole word are
// ignored.
func Wrap(b []byte) LongArray {
	return LongArray{b: b[:len(b)-len(b)%WordSize]}
}

// New allocates a heap-backed array of n zero words.
func New(n int64) LongArray {
	return LongArray{b: make([]byte, n*WordSize)}
}

// FromValues allocates an array holding vals.
func FromValues(vals ...int64) LongArray {
	a := New(int64(len(vals)))
	for i, v := range vals {
		a.Set(int64(i), v)
	}
	return a
}

func (a LongArray) Size() int64 {
	return int64(len(a.b) / WordSize)
}

func (a LongArray) Bytes() []byte {
	return a.b
}

func (a LongArray) Get(i int64) int64 {
	return int64(binary.LittleEndian.Uint64(a.b[i*WordSize:]))
}

func (a LongArray) Set(i int64, v int64) {
	binary.LittleEndian.PutUint64(a.b[i*WordSize:], uint64(v))
}

// Range returns the sub-array [start, end).
func (a LongArray) Range(start, end int64) LongArray {
	return LongArray{b: a.b[start*WordSize : end*WordSize]}
}

func (a LongArray) Fill(start, end, v int64) {
	for i := start; i < end; i++ {
		a.Set(i, v)
	}
}

// CopyTo copies n words starting at from into dst.
func (a LongArray) CopyTo(dst []int64, from int64) {
	for i := range dst {
		dst[i] = a.Get(from + int64(i))
	}
}

// BinarySearchN searches entries of stride sz in the word range [from, to)
// for key, comparing the first word of each entry. It returns the word
// position of the matching entry, or the position where it would be inserted
// and false.
func (a LongArray) BinarySearchN(sz int, key int64, from, to int64) (int64, bool) {
	stride := int64(sz)
	low, high := int64(0), (to-from)/stride-1
	for low <= high {
		mid := int64(uint64(low+high) >> 1)
		v := a.Get(from + mid*stride)
		switch {
		case v < key:
			low = mid + 1
		case v > key:
			high = mid - 1
		default:
			return from + mid*stride, true
		}
	}
	return from + low*stride, false
}

// BinarySearchUpperBound returns the first position in [from, to) whose
// value is >= key, or to when every value is smaller.
func (a LongArray) BinarySearchUpperBound(key int64, from, to int64) int64 {
	low, high := int64(0), to-from-1
	for low <= high {
		mid := int64(uint64(low+high) >> 1)
		v := a.Get(from + mid)
		switch {
		case v < key:
			low = mid + 1
		case v > key:
			high = mid - 1
		default:
			return from + mid
		}
	}
	return from + low
}

// RetainN merges buf against the entries of stride sz in [start, end),
// retaining buffer values present in the array. It stops at the first
// buffer value greater than boundary, leaving it for the next block.
func (a LongArray) RetainN(buf *QueryBuffer, sz int, boundary int64, start, end int64) {
	a.mergeN(buf, sz, boundary, start, end, true)
}

// RejectN is the complement of RetainN.
func (a LongArray) RejectN(buf *QueryBuffer, sz int, boundary int64, start, end int64) {
	a.mergeN(buf, sz, boundary, start, end, false)
}

func (a LongArray) mergeN(buf *QueryBuffer, sz int, boundary int64, start, end int64, retain bool) {
	if start >= end || !buf.HasMore() {
		return
	}
	stride := int64(sz)
	bv := buf.CurrentValue()
	pos := start
	av := a.Get(pos)
	for bv <= boundary && buf.HasMore() {
		if bv < av {
			if !buf.keep(!retain) {
				return
			}
			bv = buf.CurrentValue()
			continue
		}
		if bv == av {
			if !buf.keep(retain) {
				return
			}
			bv = buf.CurrentValue()
			continue
		}
		pos += stride
		if pos >= end {
			return
		}
		av = a.Get(pos)
	}
}

// MaxKey is the sentinel used for unused index slots.
const MaxKey int64 = math.MaxInt64
