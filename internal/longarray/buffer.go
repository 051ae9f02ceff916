package longarray

import "slices"

// QueryBuffer is a fixed-capacity buffer of sorted document IDs filtered in
// place. Filtering walks the read cursor over [0, end); retained values are
// moved to the write cursor and rejected ones are left behind it.
// FinalizeFiltering then makes [0, write) the new contents.
//
// A QueryBuffer belongs to a single query goroutine.
type QueryBuffer struct {
	data  []int64
	end   int
	read  int
	write int
}

func NewQueryBuffer(capacity int) *QueryBuffer {
	return &QueryBuffer{data: make([]int64, capacity)}
}

// BufferOf returns a buffer holding a copy of vals.
func BufferOf(vals ...int64) *QueryBuffer {
	data := slices.Clone(vals)
	return &QueryBuffer{data: data, end: len(data)}
}

// Reset opens the whole capacity for writing.
func (b *QueryBuffer) Reset() {
	b.end = len(b.data)
	b.read = 0
	b.write = 0
}

// Zero clears the contents and all cursors.
func (b *QueryBuffer) Zero() {
	clear(b.data)
	b.end = 0
	b.read = 0
	b.write = 0
}

// Slots exposes the full capacity so an entry source can fill it, followed
// by SetSize.
func (b *QueryBuffer) Slots() []int64 {
	return b.data
}

func (b *QueryBuffer) SetSize(n int) {
	b.end = n
	b.read = 0
	b.write = 0
}

func (b *QueryBuffer) Cap() int      { return len(b.data) }
func (b *QueryBuffer) Size() int     { return b.end }
func (b *QueryBuffer) IsEmpty() bool { return b.end == 0 }

// Values returns the live contents [0, end) without copying.
func (b *QueryBuffer) Values() []int64 {
	return b.data[:b.end]
}

func (b *QueryBuffer) Copy() []int64 {
	return slices.Clone(b.data[:b.end])
}

func (b *QueryBuffer) HasMore() bool {
	return b.read < b.end
}

func (b *QueryBuffer) CurrentValue() int64 {
	return b.data[b.read]
}

// RetainAndAdvance keeps the current value and reports whether more remain.
func (b *QueryBuffer) RetainAndAdvance() bool {
	if b.read != b.write {
		b.data[b.read], b.data[b.write] = b.data[b.write], b.data[b.read]
	}
	b.write++
	b.read++
	return b.read < b.end
}

// RejectAndAdvance drops the current value and reports whether more remain.
func (b *QueryBuffer) RejectAndAdvance() bool {
	b.read++
	return b.read < b.end
}

func (b *QueryBuffer) keep(retain bool) bool {
	if retain {
		return b.RetainAndAdvance()
	}
	return b.RejectAndAdvance()
}

// RetainAll keeps every remaining value.
func (b *QueryBuffer) RetainAll() {
	for b.HasMore() {
		b.RetainAndAdvance()
	}
}

// RejectAll drops every remaining value.
func (b *QueryBuffer) RejectAll() {
	b.read = b.end
}

// RetainWhere walks the remaining values, keeping those matching pred.
func (b *QueryBuffer) RetainWhere(pred func(int64) bool) {
	for b.HasMore() {
		if pred(b.CurrentValue()) {
			b.RetainAndAdvance()
		} else {
			b.RejectAndAdvance()
		}
	}
}

// FinalizeFiltering commits a filtering pass: retained values become the
// contents and the cursors rewind.
func (b *QueryBuffer) FinalizeFiltering() {
	b.end = b.write
	b.read = 0
	b.write = 0
}

// Slice returns a buffer sharing the backing array over [start, end).
// Filtering the slice permutes the parent's values in that range.
func (b *QueryBuffer) Slice(start, end int) *QueryBuffer {
	return &QueryBuffer{data: b.data[start:end:end], end: end - start}
}

// SortRange sorts data[start:end] in place.
func (b *QueryBuffer) SortRange(start, end int) {
	slices.Sort(b.data[start:end])
}

// Uniq removes adjacent duplicates from a sorted buffer.
func (b *QueryBuffer) Uniq() {
	if b.end < 2 {
		return
	}
	w := 1
	for r := 1; r < b.end; r++ {
		if b.data[r] != b.data[w-1] {
			b.data[w] = b.data[r]
			w++
		}
	}
	b.end = w
	b.read = 0
	b.write = 0
}
