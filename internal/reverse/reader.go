// Package reverse maps terms to the documents containing them. A generation
// holds two reverse indexes: the full index, whose postings carry per-term
// metadata and a positions word, and a smaller priority index holding only
// postings with high-signal flags.
package reverse

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/btree"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/longarray"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/mmap"
)

// Reader serves one words/docs file pair. Missing files make it behave as
// an index with no terms.
type Reader struct {
	name    string
	words   *btree.Reader
	docsMap *mmap.Mapping
	docs    longarray.LongArray
	docsCtx btree.Context
	logger  *slog.Logger
}

// OpenFull opens the full index in a generation directory.
func OpenFull(dir string, ctxs Contexts) (*Reader, error) {
	return OpenReader("full", filepath.Join(dir, WordsFile), filepath.Join(dir, DocsFile), ctxs.Words, ctxs.FullDocs)
}

// OpenPriority opens the priority index in a generation directory.
func OpenPriority(dir string, ctxs Contexts) (*Reader, error) {
	return OpenReader("priority", filepath.Join(dir, PrioWordsFile), filepath.Join(dir, PrioDocsFile), ctxs.Words, ctxs.PrioDocs)
}

func OpenReader(name, wordsPath, docsPath string, wordsCtx, docsCtx btree.Context) (*Reader, error) {
	logger := slog.Default().With("component", "reverse-index", "index", name)

	words, err := btree.OpenFile(wordsPath, wordsCtx)
	if err != nil {
		return nil, fmt.Errorf("opening %s words: %w", name, err)
	}
	r := &Reader{
		name:    name,
		words:   words,
		docsCtx: docsCtx,
		logger:  logger,
	}

	m, err := mmap.Open(docsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("docs file missing, index is empty", "path", docsPath)
		r.words = btree.Empty(wordsCtx)
		words.Close()
	case err != nil:
		words.Close()
		return nil, fmt.Errorf("opening %s docs: %w", name, err)
	default:
		_ = m.Advise(mmap.AccessRandom)
		r.docsMap = m
		r.docs = longarray.Wrap(m.Bytes())
	}
	logger.Info("reverse index opened", "terms", r.words.NumEntries())
	return r, nil
}

func (r *Reader) Name() string { return r.name }

// TermCount is the number of distinct terms indexed.
func (r *Reader) TermCount() int64 { return r.words.NumEntries() }

// docsTree opens the posting tree of termID, or an empty tree when the term
// is not indexed.
func (r *Reader) docsTree(termID int64) (*btree.Reader, error) {
	pos := r.words.FindEntry(termID)
	if pos < 0 {
		return btree.Empty(r.docsCtx), nil
	}
	offset := r.words.Data().Get(pos + 1)
	tree, err := btree.Open(r.docs, r.docsCtx, offset)
	if err != nil {
		return nil, fmt.Errorf("%s index term %d: %w", r.name, termID, err)
	}
	return tree, nil
}

// NumDocuments is the length of termID's posting list.
func (r *Reader) NumDocuments(termID int64) (int64, error) {
	tree, err := r.docsTree(termID)
	if err != nil {
		return 0, err
	}
	return tree.NumEntries(), nil
}

// Documents streams termID's posting list.
func (r *Reader) Documents(termID int64, behavior query.Behavior) (query.EntrySource, error) {
	tree, err := r.docsTree(termID)
	if err != nil {
		return nil, err
	}
	return &docsSource{
		tree:     tree,
		behavior: behavior,
		name:     fmt.Sprintf("%s:%d", r.name, termID),
	}, nil
}

// Also returns a filter keeping documents that contain termID.
func (r *Reader) Also(termID int64) (query.FilterStep, error) {
	tree, err := r.docsTree(termID)
	if err != nil {
		return nil, err
	}
	return &treeFilter{tree: tree, termID: termID}, nil
}

// Not returns a filter dropping documents that contain termID.
func (r *Reader) Not(termID int64) (query.FilterStep, error) {
	tree, err := r.docsTree(termID)
	if err != nil {
		return nil, err
	}
	return &treeFilter{tree: tree, termID: termID, exclude: true}, nil
}

// TermMetadata returns termID's metadata word for each of the sorted
// docIDs and whether the document has the term at all. A zero word is a
// valid encoding, so callers test presence rather than the word.
func (r *Reader) TermMetadata(termID int64, docIDs []int64) ([]int64, []bool, error) {
	return r.payload(termID, docIDs, metaPayload)
}

// PositionWords returns termID's positions word for each of the sorted
// docIDs, zero where the document lacks the term or has no positions.
func (r *Reader) PositionWords(termID int64, docIDs []int64) ([]int64, error) {
	words, _, err := r.payload(termID, docIDs, positionsPayload)
	return words, err
}

func (r *Reader) payload(termID int64, docIDs []int64, offset int) ([]int64, []bool, error) {
	if offset >= r.docsCtx.EntrySize {
		return nil, nil, apperrors.Invalidf("%s index entries have no payload word %d", r.name, offset)
	}
	tree, err := r.docsTree(termID)
	if err != nil {
		return nil, nil, err
	}
	vals, found := tree.LookupData(docIDs, offset)
	return vals, found, nil
}

func (r *Reader) Close() error {
	err := r.words.Close()
	if r.docsMap != nil {
		if cerr := r.docsMap.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
