package query

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
)

// IndexQuery pulls batches from its sources in list order and runs every
// batch through its filters. Sources are exhausted one after another and
// never merged, so IDs are ascending within a source but not across them.
type IndexQuery struct {
	sources []EntrySource
	filters []FilterStep
	budget  *budget.Budget

	fallbackThreshold int
	si                int
	produced          int
	dataCost          int64
}

func New(sources []EntrySource, b *budget.Budget) *IndexQuery {
	return &IndexQuery{sources: sources, budget: b}
}

// AddInclusionFilter appends a step to the filter chain.
func (q *IndexQuery) AddInclusionFilter(step FilterStep) *IndexQuery {
	q.filters = append(q.filters, step)
	return q
}

// SetFallbackThreshold makes DoNotPrefer sources skippable once n results
// have been produced. Zero disables skipping.
func (q *IndexQuery) SetFallbackThreshold(n int) *IndexQuery {
	q.fallbackThreshold = n
	return q
}

// HasMore reports whether any remaining source may still yield entries.
func (q *IndexQuery) HasMore() bool {
	for i := q.si; i < len(q.sources); i++ {
		if q.skips(q.sources[i]) {
			continue
		}
		if q.sources[i].HasMore() {
			return true
		}
	}
	return false
}

func (q *IndexQuery) skips(src EntrySource) bool {
	return src.Behavior() == DoNotPrefer && q.fallbackThreshold > 0 && q.produced >= q.fallbackThreshold
}

// GetMoreResults refills dest with the next batch and filters it. dest may
// come back empty while HasMore is still true. Once the budget runs out dest
// is emptied and a wrapped ErrTimeout returned.
func (q *IndexQuery) GetMoreResults(dest *longarray.QueryBuffer) error {
	if err := q.budget.Check(); err != nil {
		dest.Zero()
		return err
	}
	if !q.fillBuffer(dest) {
		return nil
	}
	for _, step := range q.filters {
		if err := q.budget.Check(); err != nil {
			dest.Zero()
			return err
		}
		if err := step.Apply(dest, q.budget); err != nil {
			dest.Zero()
			return err
		}
		q.dataCost += int64(dest.Size())
		if dest.IsEmpty() {
			return nil
		}
	}
	q.produced += dest.Size()
	return nil
}

func (q *IndexQuery) fillBuffer(dest *longarray.QueryBuffer) bool {
	for q.si < len(q.sources) {
		src := q.sources[q.si]
		if q.skips(src) || !src.HasMore() {
			q.si++
			continue
		}
		src.Read(dest)
		q.dataCost += int64(dest.Size())
		if !dest.IsEmpty() {
			return true
		}
	}
	dest.Zero()
	return false
}

// DataCost is the running count of entries read and retained by filters.
func (q *IndexQuery) DataCost() int64 {
	return q.dataCost
}

// Produced is the number of IDs that survived every filter so far.
func (q *IndexQuery) Produced() int {
	return q.produced
}

func (q *IndexQuery) String() string {
	var b strings.Builder
	b.WriteString("IndexQuery[sources=")
	for i, s := range q.sources {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s(%s)", s.IndexName(), s.Behavior())
	}
	b.WriteString(" filters=")
	for i, f := range q.filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Describe())
	}
	b.WriteByte(']')
	return b.String()
}
