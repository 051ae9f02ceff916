// Package journal reads and writes the upstream input of index
// construction: an ordered stream of documents, each with the terms it
// contains and their per-document metadata.
//
// A journal file is a zstd stream of little-endian records:
//
//	docID:int64 nTerms:uint32 { termID:int64 meta:int64 nPos:uint32 pos:uvarint... }
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/klauspost/compress/zstd"
)

const FileSuffix = ".journal.zst"

// maxTermsPerEntry bounds allocations when decoding a damaged file.
const maxTermsPerEntry = 1 << 20

// Term is one term occurrence summary within a document.
type Term struct {
	TermID    int64   `json:"term_id"`
	Meta      int64   `json:"meta"`
	Positions []int32 `json:"positions,omitempty"`
}

// Entry is one document's journal record.
type Entry struct {
	DocID int64  `json:"doc_id"`
	Terms []Term `json:"terms"`
}

// Validate checks fields the binary format cannot carry.
func (e Entry) Validate() error {
	if e.DocID < 0 {
		return apperrors.Invalidf("negative doc id %d", e.DocID)
	}
	for _, t := range e.Terms {
		for _, p := range t.Positions {
			if p < 0 {
				return apperrors.Invalidf("doc %d term %d: negative position %d", e.DocID, t.TermID, p)
			}
		}
	}
	return nil
}

// Writer appends entries to a new journal file. The file is written under a
// temporary name and renamed into place by Close.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	enc     *zstd.Encoder
	buf     *bufio.Writer
	scratch []byte
	count   int
}

func NewWriter(path string) (*Writer, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating journal file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating journal compressor: %w", err)
	}
	return &Writer{
		path:    path,
		tmpPath: tmpPath,
		file:    f,
		enc:     enc,
		buf:     bufio.NewWriterSize(enc, 1<<16),
	}, nil
}

func (w *Writer) Append(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	b := w.scratch[:0]
	b = binary.LittleEndian.AppendUint64(b, uint64(e.DocID))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(e.Terms)))
	for _, t := range e.Terms {
		b = binary.LittleEndian.AppendUint64(b, uint64(t.TermID))
		b = binary.LittleEndian.AppendUint64(b, uint64(t.Meta))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(t.Positions)))
		for _, p := range t.Positions {
			b = binary.AppendUvarint(b, uint64(p))
		}
	}
	w.scratch = b
	if _, err := w.buf.Write(b); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of entries appended.
func (w *Writer) Count() int {
	return w.count
}

func (w *Writer) Path() string {
	return w.path
}

// Close flushes, syncs and renames the journal into place.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.abort()
		return fmt.Errorf("flushing journal: %w", err)
	}
	if err := w.enc.Close(); err != nil {
		w.abort()
		return fmt.Errorf("closing journal compressor: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.abort()
		return fmt.Errorf("syncing journal: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("closing journal: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming journal: %w", err)
	}
	return nil
}

// Discard abandons the journal without publishing it.
func (w *Writer) Discard() {
	w.enc.Close()
	w.abort()
}

func (w *Writer) abort() {
	w.file.Close()
	os.Remove(w.tmpPath)
}

// Reader decodes entries from a journal file in order.
type Reader struct {
	file *os.File
	dec  *zstd.Decoder
	r    *bufio.Reader
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating journal decompressor: %w", err)
	}
	return &Reader{file: f, dec: dec, r: bufio.NewReaderSize(dec, 1<<16)}, nil
}

// Next returns the next entry, or io.EOF at a clean end of stream.
func (r *Reader) Next() (Entry, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, truncated(err)
	}
	e := Entry{DocID: int64(binary.LittleEndian.Uint64(hdr[0:8]))}
	nTerms := binary.LittleEndian.Uint32(hdr[8:12])
	if nTerms > maxTermsPerEntry {
		return Entry{}, apperrors.Corruptf("journal entry for doc %d claims %d terms", e.DocID, nTerms)
	}
	e.Terms = make([]Term, nTerms)
	var th [20]byte
	for i := range e.Terms {
		if _, err := io.ReadFull(r.r, th[:]); err != nil {
			return Entry{}, truncated(err)
		}
		t := &e.Terms[i]
		t.TermID = int64(binary.LittleEndian.Uint64(th[0:8]))
		t.Meta = int64(binary.LittleEndian.Uint64(th[8:16]))
		nPos := binary.LittleEndian.Uint32(th[16:20])
		if nPos > maxTermsPerEntry {
			return Entry{}, apperrors.Corruptf("journal term %d claims %d positions", t.TermID, nPos)
		}
		if nPos > 0 {
			t.Positions = make([]int32, nPos)
		}
		for j := range t.Positions {
			v, err := binary.ReadUvarint(r.r)
			if err != nil {
				return Entry{}, truncated(err)
			}
			if v > 1<<31-1 {
				return Entry{}, apperrors.Corruptf("journal position %d out of range", v)
			}
			t.Positions[j] = int32(v)
		}
	}
	return e, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.Corruptf("truncated journal entry")
	}
	return fmt.Errorf("reading journal: %w", err)
}

func (r *Reader) Close() error {
	r.dec.Close()
	return r.file.Close()
}

// ForEach decodes every entry of the journal at path in order.
func ForEach(path string, fn func(Entry) error) error {
	r, err := OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// List returns the journal files in dir, oldest name first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading journal directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), FileSuffix) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
