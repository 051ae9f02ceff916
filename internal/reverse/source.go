package reverse

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/btree"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/query"
)

// docsSource reads the keys of a posting tree's data region in order.
type docsSource struct {
	tree     *btree.Reader
	pos      int64
	behavior query.Behavior
	name     string
}

func (s *docsSource) Skip(n int) {
	s.pos = min(s.pos+int64(n), s.tree.NumEntries())
}

func (s *docsSource) Read(buf *longarray.QueryBuffer) {
	buf.Zero()
	n := min(int64(buf.Cap()), s.tree.NumEntries()-s.pos)
	if n <= 0 {
		return
	}
	sz := int64(s.tree.Context().EntrySize)
	data := s.tree.Data()
	slots := buf.Slots()
	for i := range n {
		slots[i] = data.Get((s.pos + i) * sz)
	}
	s.pos += n
	buf.SetSize(int(n))
}

func (s *docsSource) HasMore() bool {
	return s.pos < s.tree.NumEntries()
}

func (s *docsSource) Behavior() query.Behavior { return s.behavior }

func (s *docsSource) IndexName() string { return s.name }

func (s *docsSource) String() string {
	return fmt.Sprintf("%s[%d/%d]", s.name, s.pos, s.tree.NumEntries())
}

// treeFilter keeps (or drops) the buffer values found in a posting tree.
type treeFilter struct {
	tree    *btree.Reader
	termID  int64
	exclude bool
}

func (f *treeFilter) Test(v int64) bool {
	return (f.tree.FindEntry(v) >= 0) != f.exclude
}

// Cost is the posting list length.
func (f *treeFilter) Cost() float64 {
	return float64(f.tree.NumEntries())
}

func (f *treeFilter) Apply(buf *longarray.QueryBuffer, b *budget.Budget) error {
	var err error
	if f.exclude {
		err = f.tree.RejectEntries(buf, b)
	} else {
		err = f.tree.RetainEntries(buf, b)
	}
	if err != nil {
		return fmt.Errorf("applying %s: %w", f.Describe(), err)
	}
	buf.FinalizeFiltering()
	return nil
}

func (f *treeFilter) Describe() string {
	if f.exclude {
		return fmt.Sprintf("not(%d)", f.termID)
	}
	return fmt.Sprintf("also(%d)", f.termID)
}
