package ranking

import (
	"container/heap"
	"math"
)

const proximityScale = 1.5

// MinSpan returns the width in words of the smallest window holding at
// least one position from every list. Lists must be sorted ascending. It
// reports false if any list is empty.
func MinSpan(lists [][]int32) (int, bool) {
	if len(lists) == 0 {
		return 0, false
	}
	h := make(cursorHeap, 0, len(lists))
	hi := int32(math.MinInt32)
	for i, l := range lists {
		if len(l) == 0 {
			return 0, false
		}
		h = append(h, cursor{list: i, pos: l[0]})
		hi = max(hi, l[0])
	}
	heap.Init(&h)

	best := math.MaxInt
	for {
		lo := h[0]
		best = min(best, int(hi-lo.pos)+1)
		next := lo.idx + 1
		if next >= len(lists[lo.list]) {
			return best, true
		}
		h[0] = cursor{list: lo.list, idx: next, pos: lists[lo.list][next]}
		hi = max(hi, h[0].pos)
		heap.Fix(&h, 0)
	}
}

// ApplyProximity adds a bonus for documents whose query terms occur close
// together. span is a MinSpan result for terms query terms.
func ApplyProximity(doc ScoredDoc, span, terms int) ScoredDoc {
	if terms < 2 || span <= 0 {
		return doc
	}
	doc.Span = span
	bonus := proximityScale * float64(terms) / float64(max(span, terms))
	doc.Score = math.Round((doc.Score+bonus/float64(terms))*10000) / 10000
	return doc
}

type cursor struct {
	list int
	idx  int
	pos  int32
}

type cursorHeap []cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].pos < h[j].pos }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}
