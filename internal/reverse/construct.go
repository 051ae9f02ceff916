package reverse

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/btree"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/positions"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/mmap"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// File names inside a generation directory.
const (
	WordsFile     = "words.dat"
	DocsFile      = "docs.dat"
	PositionsFile = "positions.dat"
	PrioWordsFile = "prio-words.dat"
	PrioDocsFile  = "prio-docs.dat"
)

// Files lists every data file a generation may hold.
var Files = []string{WordsFile, DocsFile, PositionsFile, PrioWordsFile, PrioDocsFile}

// Full docs entries are (docID, metadata, positions word); priority docs
// entries are bare document IDs; words entries are (termID, docs offset).
const (
	fullDocsEntrySize = 3
	prioDocsEntrySize = 1
	wordsEntrySize    = 2

	metaPayload      = 1
	positionsPayload = 2
)

// Contexts holds the tree shapes of one generation.
type Contexts struct {
	Words    btree.Context
	FullDocs btree.Context
	PrioDocs btree.Context
}

func NewContexts(blockSize int) (Contexts, error) {
	words, err := btree.NewContext(btree.DefaultMaxLayers, wordsEntrySize, blockSize)
	if err != nil {
		return Contexts{}, err
	}
	full, err := btree.NewContext(btree.DefaultMaxLayers, fullDocsEntrySize, blockSize)
	if err != nil {
		return Contexts{}, err
	}
	prio, err := btree.NewContext(btree.DefaultMaxLayers, prioDocsEntrySize, blockSize)
	if err != nil {
		return Contexts{}, err
	}
	return Contexts{Words: words, FullDocs: full, PrioDocs: prio}, nil
}

// BuildStats summarizes a finished construction.
type BuildStats struct {
	Terms              int
	PriorityTerms      int
	Postings           int64
	PriorityPostings   int64
	PositionsBytes     int64
	TruncatedPositions int
	Duration           time.Duration
}

// Build writes the full and priority indexes for terms into dir. Position
// records are written first, then both indexes are built concurrently since
// they share no files.
func Build(ctx context.Context, dir string, ctxs Contexts, terms []TermPostings) (BuildStats, error) {
	logger := slog.Default().With("component", "index-constructor")
	start := time.Now()
	var stats BuildStats

	posWords, err := writePositions(ctx, filepath.Join(dir, PositionsFile), terms, &stats)
	if err != nil {
		return stats, err
	}

	full := treeSet{
		name:    "full",
		termIDs: make([]int64, 0, len(terms)),
		counts:  make([]int64, 0, len(terms)),
	}
	prio := treeSet{
		name: "priority",
	}
	prioPostings := make([][]int64, 0)
	for i, t := range terms {
		if len(t.Postings) == 0 {
			continue
		}
		full.termIDs = append(full.termIDs, t.TermID)
		full.counts = append(full.counts, int64(len(t.Postings)))
		full.sources = append(full.sources, i)
		stats.Postings += int64(len(t.Postings))

		var docs []int64
		for _, p := range t.Postings {
			if p.Meta.IsPriority() {
				docs = append(docs, p.DocID)
			}
		}
		if len(docs) > 0 {
			prio.termIDs = append(prio.termIDs, t.TermID)
			prio.counts = append(prio.counts, int64(len(docs)))
			prio.sources = append(prio.sources, len(prioPostings))
			prioPostings = append(prioPostings, docs)
			stats.PriorityPostings += int64(len(docs))
		}
	}
	stats.Terms = len(full.termIDs)
	stats.PriorityTerms = len(prio.termIDs)

	full.fill = func(i int, data longarray.LongArray) {
		t := terms[i]
		for j, p := range t.Postings {
			base := int64(j) * fullDocsEntrySize
			data.Set(base, p.DocID)
			data.Set(base+metaPayload, int64(p.Meta))
			data.Set(base+positionsPayload, posWords[i][j])
		}
	}
	prio.fill = func(i int, data longarray.LongArray) {
		for j, doc := range prioPostings[i] {
			data.Set(int64(j), doc)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeTreeSet(gctx, filepath.Join(dir, WordsFile), filepath.Join(dir, DocsFile), ctxs.Words, ctxs.FullDocs, full)
	})
	g.Go(func() error {
		return writeTreeSet(gctx, filepath.Join(dir, PrioWordsFile), filepath.Join(dir, PrioDocsFile), ctxs.Words, ctxs.PrioDocs, prio)
	})
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	logger.Info("index constructed",
		"dir", dir,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"priority_terms", stats.PriorityTerms,
		"priority_postings", stats.PriorityPostings,
		"positions", humanize.Bytes(uint64(stats.PositionsBytes)),
		"truncated_positions", stats.TruncatedPositions,
		"duration", stats.Duration,
	)
	return stats, nil
}

func writePositions(ctx context.Context, path string, terms []TermPostings, stats *BuildStats) ([][]int64, error) {
	pw, err := positions.NewWriter(path)
	if err != nil {
		return nil, err
	}
	words := make([][]int64, len(terms))
	for i, t := range terms {
		if err := ctx.Err(); err != nil {
			pw.Close()
			return nil, err
		}
		words[i] = make([]int64, len(t.Postings))
		for j, p := range t.Postings {
			w, err := pw.Add(byte(p.Meta.Flags()), p.Positions)
			if err != nil {
				pw.Close()
				return nil, fmt.Errorf("term %d doc %d: %w", t.TermID, p.DocID, err)
			}
			words[i][j] = w
		}
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}
	stats.PositionsBytes = pw.Size()
	stats.TruncatedPositions = pw.Truncated
	return words, nil
}

// treeSet describes one words/docs file pair: a docs tree per term, plus a
// words tree mapping each term to its docs tree offset.
type treeSet struct {
	name    string
	termIDs []int64
	counts  []int64
	sources []int
	fill    func(source int, data longarray.LongArray)
}

func writeTreeSet(ctx context.Context, wordsPath, docsPath string, wordsCtx, docsCtx btree.Context, set treeSet) error {
	var total int64
	for _, n := range set.counts {
		size, err := docsCtx.CalculateSize(n)
		if err != nil {
			return fmt.Errorf("%s index: %w", set.name, err)
		}
		total += size
	}

	docs, err := mmap.Create(docsPath, total*longarray.WordSize)
	if err != nil {
		return fmt.Errorf("%s index: %w", set.name, err)
	}
	w := btree.NewWriter(longarray.Wrap(docs.Bytes()), docsCtx)
	offsets := make([]int64, len(set.termIDs))
	var pos int64
	for i, n := range set.counts {
		if err := ctx.Err(); err != nil {
			docs.Close()
			return err
		}
		written, err := w.Write(pos, n, func(data longarray.LongArray) error {
			set.fill(set.sources[i], data)
			return nil
		})
		if err != nil {
			docs.Close()
			return fmt.Errorf("%s index term %d: %w", set.name, set.termIDs[i], err)
		}
		offsets[i] = pos
		pos += written
	}
	if err := docs.CloseTruncate(pos * longarray.WordSize); err != nil {
		return fmt.Errorf("%s index: closing docs: %w", set.name, err)
	}

	size, err := wordsCtx.CalculateSize(int64(len(set.termIDs)))
	if err != nil {
		return fmt.Errorf("%s index: %w", set.name, err)
	}
	words, err := mmap.Create(wordsPath, size*longarray.WordSize)
	if err != nil {
		return fmt.Errorf("%s index: %w", set.name, err)
	}
	written, err := btree.NewWriter(longarray.Wrap(words.Bytes()), wordsCtx).Write(0, int64(len(set.termIDs)),
		func(data longarray.LongArray) error {
			for i, id := range set.termIDs {
				data.Set(int64(i)*wordsEntrySize, id)
				data.Set(int64(i)*wordsEntrySize+1, offsets[i])
			}
			return nil
		})
	if err != nil {
		words.Close()
		return fmt.Errorf("%s index words: %w", set.name, err)
	}
	if err := words.CloseTruncate(written * longarray.WordSize); err != nil {
		return fmt.Errorf("%s index: closing words: %w", set.name, err)
	}
	return nil
}
