package btree

import (
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

// Writer lays out trees in a writable array, typically a file mapping.
type Writer struct {
	ctx   Context
	array longarray.LongArray
}

func NewWriter(array longarray.LongArray, ctx Context) *Writer {
	return &Writer{ctx: ctx, array: array}
}

// Write builds a tree of n entries at offset. populate receives the data
// region, n*EntrySize words, and must fill it in strictly ascending key
// order. It returns the number of words the tree occupies from offset.
func (w *Writer) Write(offset, n int64, populate func(data longarray.LongArray) error) (int64, error) {
	h, err := w.ctx.MakeHeader(offset, n)
	if err != nil {
		return 0, err
	}
	sz := int64(w.ctx.EntrySize)
	end := h.DataOffset + n*sz
	if end > w.array.Size() {
		return 0, apperrors.Invalidf("btree of %d entries at %d needs %d words, array has %d",
			n, offset, end, w.array.Size())
	}

	data := w.array.Range(h.DataOffset, end)
	if err := populate(data); err != nil {
		return 0, err
	}
	for i := sz; i < n*sz; i += sz {
		if data.Get(i) <= data.Get(i-sz) {
			return 0, apperrors.Invalidf("btree keys out of order at entry %d: %d after %d",
				i/sz, data.Get(i), data.Get(i-sz))
		}
	}

	h.write(w.array, offset)
	w.array.Fill(offset+HeaderWords, h.IndexOffset, 0)
	w.writeIndex(h, data)

	return end - offset, nil
}

// writeIndex fills every layer: entry i of layer L is the last key of the
// i-th full chunk of PageSize^(L+1) entries, and all other slots hold
// MaxKey so upper-bound searches route into the trailing partial chunk.
func (w *Writer) writeIndex(h Header, data longarray.LongArray) {
	n := h.NumEntries
	sz := int64(w.ctx.EntrySize)
	offsets := w.ctx.relativeLayerOffsets(n, h.Layers)
	for layer := range h.Layers {
		base := h.IndexOffset + offsets[layer]
		w.array.Fill(base, base+w.ctx.layerSize(n, layer), longarray.MaxKey)

		step := w.ctx.chunkEntries(layer)
		for i := int64(0); (i+1)*step <= n; i++ {
			w.array.Set(base+i, data.Get(((i+1)*step-1)*sz))
		}
	}
}
