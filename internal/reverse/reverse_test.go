package reverse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/positions"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/query"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	termRed   = 10
	termGreen = 20
	termBlue  = 30
	termRare  = 40
)

func meta(flags wordmeta.Flag, pos ...int32) int64 {
	return int64(wordmeta.Encode(flags, len(pos), 100, wordmeta.PositionMask(pos)))
}

// fixture indexes 300 documents: red in every doc, green in even docs,
// blue in multiples of 3, and rare only in doc 150. Docs divisible by 50
// carry red in their title.
func fixture(t *testing.T) (string, Contexts) {
	t.Helper()
	pre := NewPreindex()
	for doc := int64(1); doc <= 300; doc++ {
		redFlags := wordmeta.Flag(0)
		if doc%50 == 0 {
			redFlags = wordmeta.FlagTitle
		}
		e := journal.Entry{DocID: doc, Terms: []journal.Term{
			{TermID: termRed, Meta: meta(redFlags, 1, 2), Positions: []int32{1, 2}},
		}}
		if doc%2 == 0 {
			e.Terms = append(e.Terms, journal.Term{TermID: termGreen, Meta: meta(0, 3), Positions: []int32{3}})
		}
		if doc%3 == 0 {
			e.Terms = append(e.Terms, journal.Term{TermID: termBlue, Meta: meta(0)})
		}
		if doc == 150 {
			e.Terms = append(e.Terms, journal.Term{TermID: termRare, Meta: meta(wordmeta.FlagSubjects, 7, 9), Positions: []int32{9, 7}})
		}
		pre.Add(e)
	}
	require.Equal(t, 300, pre.DocCount())
	require.Equal(t, 300+150+100+1, pre.PostingCount())

	// 8-word pages so posting trees get index layers
	ctxs, err := NewContexts(64)
	require.NoError(t, err)

	dir := t.TempDir()
	stats, err := Build(context.Background(), dir, ctxs, pre.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Terms)
	assert.Equal(t, int64(551), stats.Postings)
	assert.Equal(t, 2, stats.PriorityTerms)
	assert.Equal(t, int64(7), stats.PriorityPostings)
	return dir, ctxs
}

func readAll(t *testing.T, src query.EntrySource, capacity int) []int64 {
	t.Helper()
	buf := longarray.NewQueryBuffer(capacity)
	var out []int64
	for src.HasMore() {
		src.Read(buf)
		out = append(out, buf.Copy()...)
	}
	return out
}

func TestFullIndex(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	assert.Equal(t, int64(4), full.TermCount())
	for term, want := range map[int64]int64{termRed: 300, termGreen: 150, termBlue: 100, termRare: 1, 999: 0} {
		n, err := full.NumDocuments(term)
		require.NoError(t, err)
		assert.Equal(t, want, n, "term %d", term)
	}

	src, err := full.Documents(termBlue, query.DoNotPrefer)
	require.NoError(t, err)
	docs := readAll(t, src, 7)
	require.Len(t, docs, 100)
	for i, d := range docs {
		assert.Equal(t, int64(3*(i+1)), d)
	}

	src, err = full.Documents(999, query.DoNotPrefer)
	require.NoError(t, err)
	assert.False(t, src.HasMore())
}

func TestAlsoAndNotFilters(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	src, err := full.Documents(termRed, query.DoNotPrefer)
	require.NoError(t, err)
	also, err := full.Also(termGreen)
	require.NoError(t, err)
	not, err := full.Not(termBlue)
	require.NoError(t, err)

	q := query.New([]query.EntrySource{src}, budget.New(1000))
	q.AddInclusionFilter(also).AddInclusionFilter(not)

	var got []int64
	buf := longarray.NewQueryBuffer(32)
	for q.HasMore() {
		require.NoError(t, q.GetMoreResults(buf))
		got = append(got, buf.Copy()...)
	}

	var want []int64
	for d := int64(1); d <= 300; d++ {
		if d%2 == 0 && d%3 != 0 {
			want = append(want, d)
		}
	}
	assert.Equal(t, want, got)
	assert.True(t, also.Test(4))
	assert.False(t, not.Test(9))
	assert.Equal(t, 150.0, also.Cost())
	assert.Equal(t, "not(30)", not.Describe())
}

func TestMissingTermFilters(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	also, err := full.Also(999)
	require.NoError(t, err)
	buf := longarray.BufferOf(1, 2, 3)
	require.NoError(t, also.Apply(buf, nil))
	assert.True(t, buf.IsEmpty())

	not, err := full.Not(999)
	require.NoError(t, err)
	buf = longarray.BufferOf(1, 2, 3)
	require.NoError(t, not.Apply(buf, nil))
	assert.Equal(t, []int64{1, 2, 3}, buf.Copy())
}

func TestTreeFilterStopsOnExhaustedBudget(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	also, err := full.Also(termGreen)
	require.NoError(t, err)
	err = also.Apply(longarray.BufferOf(2, 4, 6), budget.New(0))
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorContains(t, err, "also(")
}

func TestTermMetadataAndPositions(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	docs := []int64{3, 4, 150}
	metas, present, err := full.TermMetadata(termGreen, docs)
	require.NoError(t, err)
	assert.Zero(t, metas[0])
	assert.Equal(t, meta(0, 3), metas[1])
	assert.Equal(t, meta(0, 3), metas[2])
	assert.Equal(t, []bool{false, true, true}, present)

	metas, present, err = full.TermMetadata(termBlue, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{meta(0), 0}, metas)
	assert.Equal(t, []bool{true, false}, present)

	_, present, err = full.TermMetadata(999, []int64{3})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, present)

	words, err := full.PositionWords(termRare, docs)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, words[:2])
	require.NotZero(t, words[2])

	pr, err := positions.Open(filepath.Join(dir, PositionsFile), positions.BackendMmap)
	require.NoError(t, err)
	defer pr.Close()
	data, err := pr.GetTermData(budget.New(1000), words)
	require.NoError(t, err)
	assert.Nil(t, data[0])
	pos, err := data[2].Positions()
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 9}, pos)
	assert.Equal(t, byte(wordmeta.FlagSubjects), data[2].Flags())

	// blue postings carry neither flags nor positions
	words, err = full.PositionWords(termBlue, []int64{3})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, words)
}

func TestPriorityIndex(t *testing.T) {
	dir, ctxs := fixture(t)
	prio, err := OpenPriority(dir, ctxs)
	require.NoError(t, err)
	defer prio.Close()

	src, err := prio.Documents(termRed, query.DoPrefer)
	require.NoError(t, err)
	assert.Equal(t, query.DoPrefer, src.Behavior())
	assert.Equal(t, []int64{50, 100, 150, 200, 250, 300}, readAll(t, src, 4))

	n, err := prio.NumDocuments(termGreen)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, _, err = prio.TermMetadata(termRed, []int64{50})
	assert.Error(t, err)
}

func TestMissingPriorityFiles(t *testing.T) {
	dir, ctxs := fixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, PrioWordsFile)))
	require.NoError(t, os.Remove(filepath.Join(dir, PrioDocsFile)))

	prio, err := OpenPriority(dir, ctxs)
	require.NoError(t, err)
	defer prio.Close()
	assert.Zero(t, prio.TermCount())
	src, err := prio.Documents(termRed, query.DoPrefer)
	require.NoError(t, err)
	assert.False(t, src.HasMore())
}

func TestSourceSkip(t *testing.T) {
	dir, ctxs := fixture(t)
	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()

	src, err := full.Documents(termGreen, query.DoNotPrefer)
	require.NoError(t, err)
	src.Skip(148)
	assert.Equal(t, []int64{298, 300}, readAll(t, src, 10))
	src.Skip(5)
	assert.False(t, src.HasMore())
}

func TestPreindexReplacesDocument(t *testing.T) {
	pre := NewPreindex()
	pre.Add(journal.Entry{DocID: 1, Terms: []journal.Term{{TermID: 5, Meta: 1, Positions: []int32{4, 2, 2}}}})
	pre.Add(journal.Entry{DocID: 1, Terms: []journal.Term{{TermID: 5, Meta: 2}}})
	pre.Add(journal.Entry{DocID: 0, Terms: []journal.Term{{TermID: 5, Meta: 3, Positions: []int32{9, 1}}}})

	snap := pre.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, []Posting{
		{DocID: 0, Meta: 3, Positions: []int32{1, 9}},
		{DocID: 1, Meta: 2, Positions: []int32{}},
	}, nilPositions(snap[0].Postings))
	assert.Equal(t, 2, pre.PostingCount())
	assert.Equal(t, 2, pre.DocCount())

	// A later entry without term 5 takes doc 0 out of its postings.
	pre.Add(journal.Entry{DocID: 0, Terms: []journal.Term{{TermID: 6, Meta: 4}}})
	snap = pre.Snapshot()
	require.Len(t, snap, 2)
	assert.Len(t, snap[0].Postings, 1)
	assert.Equal(t, int64(1), snap[0].Postings[0].DocID)
	assert.Equal(t, 2, pre.PostingCount())

	pre.Reset()
	assert.Empty(t, pre.Snapshot())
	assert.Zero(t, pre.Size())
}

func nilPositions(ps []Posting) []Posting {
	for i := range ps {
		if ps[i].Positions == nil {
			ps[i].Positions = []int32{}
		}
	}
	return ps
}

func TestBuildEmpty(t *testing.T) {
	ctxs, err := NewContexts(2048)
	require.NoError(t, err)
	dir := t.TempDir()
	stats, err := Build(context.Background(), dir, ctxs, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Terms)

	full, err := OpenFull(dir, ctxs)
	require.NoError(t, err)
	defer full.Close()
	assert.Zero(t, full.TermCount())
}
