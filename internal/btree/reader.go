package btree

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/mmap"
)

// Reader answers lookups against one tree. It is stateless over the backing
// array and safe for concurrent use.
type Reader struct {
	ctx          Context
	header       Header
	index        longarray.LongArray
	data         longarray.LongArray
	layerOffsets []int64
	closer       io.Closer
}

// Open reads and validates the tree header at offset. A header that does
// not describe a well-formed tree yields ErrCorruptIndex.
func Open(file longarray.LongArray, ctx Context, offset int64) (*Reader, error) {
	h, err := ReadHeader(file, offset)
	if err != nil {
		return nil, err
	}
	if err := h.validate(ctx, offset, file.Size()); err != nil {
		return nil, err
	}
	return &Reader{
		ctx:          ctx,
		header:       h,
		index:        file.Range(h.IndexOffset, h.DataOffset),
		data:         file.Range(h.DataOffset, h.DataOffset+h.NumEntries*int64(ctx.EntrySize)),
		layerOffsets: ctx.relativeLayerOffsets(h.NumEntries, h.Layers),
	}, nil
}

// Empty returns a reader over a tree with no entries.
func Empty(ctx Context) *Reader {
	return &Reader{ctx: ctx}
}

// OpenFile maps the file at path and opens the tree at its start. A missing
// file yields an empty reader, since some trees are optional.
func OpenFile(path string, ctx Context) (*Reader, error) {
	m, err := mmap.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().With("component", "btree").Warn("index file missing, using empty reader", "path", path)
		return Empty(ctx), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening btree file: %w", err)
	}
	_ = m.Advise(mmap.AccessRandom)
	r, err := Open(longarray.Wrap(m.Bytes()), ctx, 0)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r.closer = m
	return r, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) Context() Context { return r.ctx }

func (r *Reader) Header() Header { return r.header }

func (r *Reader) NumEntries() int64 { return r.header.NumEntries }

// Data is the tree's data region, NumEntries*EntrySize words.
func (r *Reader) Data() longarray.LongArray { return r.data }

// ReadData copies len(dst) data words starting at word position pos.
func (r *Reader) ReadData(dst []int64, pos int64) {
	r.data.CopyTo(dst, pos)
}

// FindEntry returns the data word position of the entry keyed key, or -1.
func (r *Reader) FindEntry(key int64) int64 {
	p := r.newPointer()
	if !p.walkToData(key) {
		return -1
	}
	start, end := p.blockRange()
	pos, ok := r.data.BinarySearchN(r.ctx.EntrySize, key, start, end)
	if !ok {
		return -1
	}
	return pos
}

// QueryData returns, for each key, the word payloadOffset positions after
// the start of its entry, or zero when the key is absent. keys must be
// sorted ascending; consecutive keys falling in one data block share a
// single descent.
func (r *Reader) QueryData(keys []int64, payloadOffset int) []int64 {
	out, _ := r.LookupData(keys, payloadOffset)
	return out
}

// LookupData is QueryData that also reports which keys were found, for
// payloads where zero is a legitimate value.
func (r *Reader) LookupData(keys []int64, payloadOffset int) ([]int64, []bool) {
	out := make([]int64, len(keys))
	found := make([]bool, len(keys))
	if r.header.NumEntries == 0 {
		return out, found
	}
	p := r.newPointer()
	inBlock := false
	var from int64
	for i, key := range keys {
		if !inBlock || key > p.boundary {
			p.reset()
			if !p.walkToData(key) {
				inBlock = false
				continue
			}
			inBlock = true
			from, _ = p.blockRange()
		}
		_, end := p.blockRange()
		pos, ok := r.data.BinarySearchN(r.ctx.EntrySize, key, from, end)
		from = pos
		if ok {
			out[i] = r.data.Get(pos + int64(payloadOffset))
			found[i] = true
		}
	}
	return out, found
}

// budgetPollInterval is the number of block descents between budget checks.
const budgetPollInterval = 32

// RetainEntries keeps the buffer values present in the tree. The buffer must
// be sorted and deduplicated; the caller finalizes it. A nil budget is never
// polled; an exhausted one stops the pass with a wrapped ErrTimeout and the
// buffer half filtered.
func (r *Reader) RetainEntries(buf *longarray.QueryBuffer, b *budget.Budget) error {
	return r.filterEntries(buf, b, true)
}

// RejectEntries drops the buffer values present in the tree.
func (r *Reader) RejectEntries(buf *longarray.QueryBuffer, b *budget.Budget) error {
	return r.filterEntries(buf, b, false)
}

// filterEntries descends once per touched data block and merges the buffer
// against that block in a single pass. Values past the last key are
// settled together without a descent.
func (r *Reader) filterEntries(buf *longarray.QueryBuffer, b *budget.Budget, retain bool) error {
	if r.header.NumEntries == 0 {
		missRest(buf, retain)
		return nil
	}
	last := r.data.Get((r.header.NumEntries - 1) * int64(r.ctx.EntrySize))
	p := r.newPointer()
	for descents := 0; buf.HasMore(); descents++ {
		if b != nil && descents%budgetPollInterval == 0 {
			if err := b.Check(); err != nil {
				return fmt.Errorf("filtering against btree: %w", err)
			}
		}
		key := buf.CurrentValue()
		if key > last {
			missRest(buf, retain)
			return nil
		}
		if !p.walkToData(key) {
			keepMiss(buf, retain)
			p.reset()
			continue
		}
		start, end := p.blockRange()
		pos, _ := r.data.BinarySearchN(r.ctx.EntrySize, key, start, end)
		if pos >= end {
			keepMiss(buf, retain)
		} else if retain {
			r.data.RetainN(buf, r.ctx.EntrySize, p.boundary, pos, end)
		} else {
			r.data.RejectN(buf, r.ctx.EntrySize, p.boundary, pos, end)
		}
		p.reset()
	}
	return nil
}

func keepMiss(buf *longarray.QueryBuffer, retain bool) {
	if retain {
		buf.RejectAndAdvance()
	} else {
		buf.RetainAndAdvance()
	}
}

// missRest settles every remaining value as absent from the tree.
func missRest(buf *longarray.QueryBuffer, retain bool) {
	if retain {
		buf.RejectAll()
	} else {
		buf.RetainAll()
	}
}

// pointer tracks a descent from the root. offset is an entry index within
// the current layer, or a data entry index once layer is below zero.
type pointer struct {
	r        *Reader
	layer    int
	offset   int64
	boundary int64
}

func (r *Reader) newPointer() *pointer {
	p := &pointer{r: r}
	p.reset()
	return p
}

func (p *pointer) reset() {
	p.layer = p.r.header.Layers - 1
	p.offset = 0
	p.boundary = longarray.MaxKey
}

func (p *pointer) walkToData(key int64) bool {
	for p.layer >= 0 {
		if !p.walkToChild(key) {
			return false
		}
	}
	return true
}

// walkToChild picks the first index slot >= key in the current block and
// moves to the block it covers. It fails when no chunk can hold key.
func (p *pointer) walkToChild(key int64) bool {
	ps := p.r.ctx.PageSize()
	start := p.r.layerOffsets[p.layer] + p.offset
	pos := p.r.index.BinarySearchUpperBound(key, start, start+ps) - start
	if pos >= ps {
		return false
	}
	child := p.offset + pos
	if child*p.r.ctx.chunkEntries(p.layer) >= p.r.header.NumEntries {
		return false
	}
	p.boundary = p.r.index.Get(start + pos)
	p.offset = ps * child
	p.layer--
	return true
}

// blockRange is the word range of the current data block.
func (p *pointer) blockRange() (int64, int64) {
	sz := int64(p.r.ctx.EntrySize)
	start := p.offset * sz
	end := p.r.data.Size()
	if p.r.header.Layers > 0 {
		end = min(end, start+p.r.ctx.PageSize()*sz)
	}
	return start, end
}
