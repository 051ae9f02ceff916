package query

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// FilterStep narrows a buffer in place. Apply walks the buffer's remaining
// values and finalizes it, so afterwards the buffer holds exactly the
// retained values, still sorted. Steps that do real work poll b and give
// up with a wrapped ErrTimeout, leaving the buffer unspecified.
type FilterStep interface {
	Test(v int64) bool
	// Cost is a relative estimate used to order steps, cheapest first.
	Cost() float64
	Apply(buf *longarray.QueryBuffer, b *budget.Budget) error
	Describe() string
}

type predicateStep struct {
	pred    func(int64) bool
	exclude bool
	name    string
}

// FromPredicate keeps values matching pred.
func FromPredicate(name string, pred func(int64) bool) FilterStep {
	return &predicateStep{pred: pred, name: name}
}

// ExcludeFromPredicate drops values matching pred.
func ExcludeFromPredicate(name string, pred func(int64) bool) FilterStep {
	return &predicateStep{pred: pred, exclude: true, name: name}
}

func (s *predicateStep) Test(v int64) bool {
	return s.pred(v) != s.exclude
}

func (s *predicateStep) Cost() float64 { return 1 }

func (s *predicateStep) Apply(buf *longarray.QueryBuffer, _ *budget.Budget) error {
	buf.RetainWhere(s.Test)
	buf.FinalizeFiltering()
	return nil
}

func (s *predicateStep) Describe() string {
	if s.exclude {
		return "not(" + s.name + ")"
	}
	return s.name
}

type letThrough struct{}

// LetThrough keeps everything.
func LetThrough() FilterStep { return letThrough{} }

func (letThrough) Test(int64) bool  { return true }
func (letThrough) Cost() float64    { return 0 }
func (letThrough) Describe() string { return "pass" }

func (letThrough) Apply(buf *longarray.QueryBuffer, _ *budget.Budget) error {
	buf.RetainAll()
	buf.FinalizeFiltering()
	return nil
}

type noPass struct{}

// NoPass keeps nothing.
func NoPass() FilterStep { return noPass{} }

func (noPass) Test(int64) bool  { return false }
func (noPass) Cost() float64    { return 0 }
func (noPass) Describe() string { return "reject" }

func (noPass) Apply(buf *longarray.QueryBuffer, _ *budget.Budget) error {
	buf.RejectAll()
	buf.FinalizeFiltering()
	return nil
}

type anyOf struct {
	steps []FilterStep
}

// AnyOf keeps values retained by at least one step.
func AnyOf(steps ...FilterStep) FilterStep {
	return &anyOf{steps: steps}
}

func (f *anyOf) Test(v int64) bool {
	for _, s := range f.steps {
		if s.Test(v) {
			return true
		}
	}
	return false
}

func (f *anyOf) Cost() float64 {
	var cost float64
	for _, s := range f.steps {
		cost += s.Cost()
	}
	return cost
}

// Apply runs each step over the values rejected by the steps before it.
// A pass leaves its retained values at the front of its range and the
// rejected ones after them, so every step works on the tail that is still
// undecided. The union is re-sorted at the end.
func (f *anyOf) Apply(buf *longarray.QueryBuffer, b *budget.Budget) error {
	if len(f.steps) == 0 {
		buf.RejectAll()
		buf.FinalizeFiltering()
		return nil
	}
	if len(f.steps) == 1 {
		return f.steps[0].Apply(buf, b)
	}
	end := buf.Size()
	start := 0
	for _, step := range f.steps {
		if start >= end {
			break
		}
		buf.SortRange(start, end)
		slice := buf.Slice(start, end)
		if err := step.Apply(slice, b); err != nil {
			return err
		}
		start += slice.Size()
	}
	buf.SetSize(start)
	buf.SortRange(0, start)
	return nil
}

func (f *anyOf) Describe() string {
	parts := make([]string, len(f.steps))
	for i, s := range f.steps {
		parts[i] = s.Describe()
	}
	return "any(" + strings.Join(parts, ",") + ")"
}

type setStep struct {
	set     *roaring64.Bitmap
	exclude bool
	name    string
}

// InSet keeps values contained in set.
func InSet(name string, set *roaring64.Bitmap) FilterStep {
	return &setStep{set: set, name: name}
}

// NotInSet drops values contained in set.
func NotInSet(name string, set *roaring64.Bitmap) FilterStep {
	return &setStep{set: set, exclude: true, name: name}
}

func (s *setStep) Test(v int64) bool {
	return s.set.Contains(uint64(v)) != s.exclude
}

func (s *setStep) Cost() float64 { return 1 }

func (s *setStep) Apply(buf *longarray.QueryBuffer, _ *budget.Budget) error {
	buf.RetainWhere(s.Test)
	buf.FinalizeFiltering()
	return nil
}

func (s *setStep) Describe() string {
	verb := "in"
	if s.exclude {
		verb = "not-in"
	}
	return fmt.Sprintf("%s(%s:%d)", verb, s.name, s.set.GetCardinality())
}
