// Package query evaluates a boolean document query as a pull pipeline:
// entry sources produce batches of sorted document IDs, and an ordered chain
// of filter steps narrows each batch in place.
package query

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
)

// Behavior is a planner hint attached to a source.
type Behavior int

const (
	// DoPrefer marks a cheap, selective source worth reading first.
	DoPrefer Behavior = iota
	// DoNotPrefer marks a fallback source that may be skipped once enough
	// results have been produced.
	DoNotPrefer
)

func (b Behavior) String() string {
	switch b {
	case DoPrefer:
		return "prefer"
	case DoNotPrefer:
		return "fallback"
	default:
		return fmt.Sprintf("behavior(%d)", int(b))
	}
}

// EntrySource streams document IDs in ascending order.
type EntrySource interface {
	// Skip advances past n entries.
	Skip(n int)
	// Read zeroes buf and fills it with the next entries.
	Read(buf *longarray.QueryBuffer)
	HasMore() bool
	Behavior() Behavior
	IndexName() string
}

// SliceSource serves a fixed sorted slice of IDs.
type SliceSource struct {
	values   []int64
	pos      int
	behavior Behavior
	name     string
}

func NewSliceSource(name string, behavior Behavior, values ...int64) *SliceSource {
	return &SliceSource{values: values, behavior: behavior, name: name}
}

func (s *SliceSource) Skip(n int) {
	s.pos = min(s.pos+n, len(s.values))
}

func (s *SliceSource) Read(buf *longarray.QueryBuffer) {
	buf.Zero()
	n := copy(buf.Slots(), s.values[s.pos:])
	s.pos += n
	buf.SetSize(n)
}

func (s *SliceSource) HasMore() bool      { return s.pos < len(s.values) }
func (s *SliceSource) Behavior() Behavior { return s.behavior }
func (s *SliceSource) IndexName() string  { return s.name }
