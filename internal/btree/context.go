// Package btree implements a static, write-once block index over a sorted
// array of fixed-size entries. A tree is laid out as a three-word header,
// zero or more index layers and a data region:
//
//	[header][pad][layer 0 ... root layer][data]
//
// Every index block and data block starts on a page boundary, where a page
// is Context.PageSize() words. Each index entry holds the last key of the
// chunk of entries it covers, so a lookup descends one block per layer and
// finishes with a binary search inside a single data block.
package btree

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

const (
	DefaultBlockSize = 2048
	DefaultMaxLayers = 5
)

// Context fixes the shape shared by a writer and every reader of its trees.
type Context struct {
	MaxLayers int
	EntrySize int
	BlockSize int
}

// NewContext validates and returns a context. blockSize is in bytes and must
// be a whole number of words.
func NewContext(maxLayers, entrySize, blockSize int) (Context, error) {
	if entrySize < 1 {
		return Context{}, apperrors.Invalidf("entry size %d", entrySize)
	}
	if blockSize < 2*longarray.WordSize || blockSize%longarray.WordSize != 0 {
		return Context{}, apperrors.Invalidf("block size %d", blockSize)
	}
	if maxLayers < 1 {
		return Context{}, apperrors.Invalidf("max layers %d", maxLayers)
	}
	return Context{MaxLayers: maxLayers, EntrySize: entrySize, BlockSize: blockSize}, nil
}

// MustContext is NewContext for constant arguments.
func MustContext(maxLayers, entrySize, blockSize int) Context {
	ctx, err := NewContext(maxLayers, entrySize, blockSize)
	if err != nil {
		panic(err)
	}
	return ctx
}

// PageSize is the block size in words.
func (c Context) PageSize() int64 {
	return int64(c.BlockSize / longarray.WordSize)
}

// NumIndexLayers returns how many index layers a tree of n entries needs:
// none when the data fits in one page, otherwise the smallest L with
// n <= PageSize^L.
func (c Context) NumIndexLayers(n int64) (int, error) {
	ps := c.PageSize()
	if n*int64(c.EntrySize) <= ps {
		return 0, nil
	}
	limit := ps
	for layers := 1; layers <= c.MaxLayers; layers++ {
		if n <= limit {
			return layers, nil
		}
		limit *= ps
	}
	return 0, apperrors.Invalidf("%d entries need more than %d index layers", n, c.MaxLayers)
}

// chunkEntries is the number of data entries covered by one entry of the
// given index layer.
func (c Context) chunkEntries(layer int) int64 {
	step := c.PageSize()
	for range layer {
		step *= c.PageSize()
	}
	return step
}

// layerSize is the word size of an index layer, rounded up to whole pages.
func (c Context) layerSize(n int64, layer int) int64 {
	ps := c.PageSize()
	step := c.chunkEntries(layer)
	entries := (n + step - 1) / step
	return (entries + ps - 1) / ps * ps
}

// indexSize is the total word size of all index layers.
func (c Context) indexSize(n int64, layers int) int64 {
	var size int64
	for l := range layers {
		size += c.layerSize(n, l)
	}
	return size
}

// relativeLayerOffsets gives each layer's start relative to the index
// region; layer 0 comes first.
func (c Context) relativeLayerOffsets(n int64, layers int) []int64 {
	offsets := make([]int64, layers)
	var pos int64
	for l := range layers {
		offsets[l] = pos
		pos += c.layerSize(n, l)
	}
	return offsets
}

// CalculateSize returns an upper bound, in words, for a tree of n entries
// written at any offset.
func (c Context) CalculateSize(n int64) (int64, error) {
	layers, err := c.NumIndexLayers(n)
	if err != nil {
		return 0, err
	}
	size := int64(HeaderWords) + n*int64(c.EntrySize)
	if layers > 0 {
		size += c.PageSize() - 1 + c.indexSize(n, layers)
	}
	return size, nil
}

func (c Context) String() string {
	return fmt.Sprintf("btree[entry=%d block=%d layers<=%d]", c.EntrySize, c.BlockSize, c.MaxLayers)
}
