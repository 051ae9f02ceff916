package btree

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

const HeaderWords = 3

// Header locates a tree's regions. Offsets are absolute word positions in
// the backing array.
type Header struct {
	Layers      int
	NumEntries  int64
	IndexOffset int64
	DataOffset  int64
}

// MakeHeader computes the header of an n-entry tree starting at offset.
func (c Context) MakeHeader(offset, n int64) (Header, error) {
	if n < 0 || n > math.MaxUint32 {
		return Header{}, apperrors.Invalidf("entry count %d out of range", n)
	}
	layers, err := c.NumIndexLayers(n)
	if err != nil {
		return Header{}, err
	}
	indexOffset := offset + HeaderWords
	if layers > 0 {
		ps := c.PageSize()
		indexOffset += (ps - indexOffset%ps) % ps
	}
	return Header{
		Layers:      layers,
		NumEntries:  n,
		IndexOffset: indexOffset,
		DataOffset:  indexOffset + c.indexSize(n, layers),
	}, nil
}

// ReadHeader decodes the header at offset without validating it against a
// context.
func ReadHeader(a longarray.LongArray, offset int64) (Header, error) {
	if offset < 0 || offset+HeaderWords > a.Size() {
		return Header{}, apperrors.Corruptf("btree header at %d past end of %d words", offset, a.Size())
	}
	w0 := uint64(a.Get(offset))
	return Header{
		Layers:      int(w0 >> 32),
		NumEntries:  int64(w0 & math.MaxUint32),
		IndexOffset: a.Get(offset + 1),
		DataOffset:  a.Get(offset + 2),
	}, nil
}

func (h Header) write(a longarray.LongArray, offset int64) {
	a.Set(offset, int64(uint64(h.Layers)<<32|uint64(h.NumEntries)))
	a.Set(offset+1, h.IndexOffset)
	a.Set(offset+2, h.DataOffset)
}

// validate checks the header read at offset against ctx and the array size.
func (h Header) validate(c Context, offset, size int64) error {
	if h.IndexOffset < offset+HeaderWords || h.DataOffset < h.IndexOffset {
		return apperrors.Corruptf("btree at %d: inconsistent offsets index=%d data=%d",
			offset, h.IndexOffset, h.DataOffset)
	}
	layers, err := c.NumIndexLayers(h.NumEntries)
	if err != nil {
		return apperrors.Corruptf("btree at %d: %v", offset, err)
	}
	if layers != h.Layers {
		return apperrors.Corruptf("btree at %d: %d layers for %d entries, expected %d",
			offset, h.Layers, h.NumEntries, layers)
	}
	if h.DataOffset-h.IndexOffset != c.indexSize(h.NumEntries, layers) {
		return apperrors.Corruptf("btree at %d: index region of %d words, expected %d",
			offset, h.DataOffset-h.IndexOffset, c.indexSize(h.NumEntries, layers))
	}
	if layers > 0 && h.IndexOffset%c.PageSize() != 0 {
		return apperrors.Corruptf("btree at %d: index offset %d not page aligned", offset, h.IndexOffset)
	}
	if end := h.DataOffset + h.NumEntries*int64(c.EntrySize); end > size {
		return apperrors.Corruptf("btree at %d: data ends at %d past %d words", offset, end, size)
	}
	return nil
}
