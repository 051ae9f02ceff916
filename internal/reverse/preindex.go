package reverse

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
)

// Posting is one document's entry in a term's posting list.
type Posting struct {
	DocID     int64
	Meta      wordmeta.Metadata
	Positions []int32
}

// TermPostings is a term's postings sorted by document ID.
type TermPostings struct {
	TermID   int64
	Postings []Posting
}

// Preindex accumulates journal entries in memory, term by term, until they
// are written out as a generation. A document added twice keeps its latest
// postings.
type Preindex struct {
	mu       sync.RWMutex
	terms    map[int64]map[int64]*Posting
	docs     map[int64][]int64
	postings int
	size     int64
}

func NewPreindex() *Preindex {
	return &Preindex{
		terms: make(map[int64]map[int64]*Posting),
		docs:  make(map[int64][]int64),
	}
}

func (p *Preindex) Add(e journal.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeLocked(e.DocID)
	termIDs := make([]int64, 0, len(e.Terms))
	for _, t := range e.Terms {
		docs, ok := p.terms[t.TermID]
		if !ok {
			docs = make(map[int64]*Posting)
			p.terms[t.TermID] = docs
		}
		if _, seen := docs[e.DocID]; !seen {
			p.postings++
			termIDs = append(termIDs, t.TermID)
		}
		positions := slices.Clone(t.Positions)
		slices.Sort(positions)
		positions = slices.Compact(positions)
		docs[e.DocID] = &Posting{DocID: e.DocID, Meta: wordmeta.Metadata(t.Meta), Positions: positions}
		p.size += int64(24 + 4*len(positions))
	}
	p.docs[e.DocID] = termIDs
}

// removeLocked drops the postings of an earlier entry for doc.
func (p *Preindex) removeLocked(doc int64) {
	termIDs, ok := p.docs[doc]
	if !ok {
		return
	}
	for _, id := range termIDs {
		docs := p.terms[id]
		if posting, ok := docs[doc]; ok {
			p.size -= int64(24 + 4*len(posting.Positions))
			p.postings--
			delete(docs, doc)
		}
		if len(docs) == 0 {
			delete(p.terms, id)
		}
	}
	delete(p.docs, doc)
}

// Snapshot returns every term's postings, terms ascending and postings
// ascending by document.
func (p *Preindex) Snapshot() []TermPostings {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]TermPostings, 0, len(p.terms))
	for termID, docs := range p.terms {
		postings := make([]Posting, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		slices.SortFunc(postings, func(a, b Posting) int { return cmp.Compare(a.DocID, b.DocID) })
		out = append(out, TermPostings{TermID: termID, Postings: postings})
	}
	slices.SortFunc(out, func(a, b TermPostings) int { return cmp.Compare(a.TermID, b.TermID) })
	return out
}

// Size is an estimate of the bytes held.
func (p *Preindex) Size() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

func (p *Preindex) DocCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

func (p *Preindex) PostingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.postings
}

func (p *Preindex) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terms = make(map[int64]map[int64]*Posting)
	p.docs = make(map[int64][]int64)
	p.postings = 0
	p.size = 0
}
