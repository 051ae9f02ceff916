package positions

import (
	"bufio"
	"fmt"
	"os"
)

// Writer appends term-data records to a positions file and hands back the
// offset word to store alongside each posting.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	offset int64
	// Truncated counts records whose position lists were cut to fit.
	Truncated int
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating positions file: %w", err)
	}
	return &Writer{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Add writes one record. A record with no flags and no positions is not
// stored and yields the zero word.
func (w *Writer) Add(flags byte, positions []int32) (int64, error) {
	if flags == 0 && len(positions) == 0 {
		return 0, nil
	}
	rec, err := EncodeSequence(flags, positions)
	if err != nil {
		return 0, err
	}
	if len(rec) >= MaxLength {
		rec = truncateRecord(rec)
		w.Truncated++
	}
	word, err := Encode(len(rec), w.offset)
	if err != nil {
		return 0, err
	}
	if _, err := w.w.Write(rec); err != nil {
		return 0, fmt.Errorf("writing positions record: %w", err)
	}
	w.offset += int64(len(rec))
	return word, nil
}

// truncateRecord cuts rec at the last whole varint that keeps it under
// MaxLength bytes.
func truncateRecord(rec []byte) []byte {
	limit := MaxLength - 1
	cut := 1
	for i := 1; i < len(rec) && i < limit; i++ {
		if rec[i]&0x80 == 0 {
			cut = i + 1
		}
	}
	return rec[:cut]
}

// Size is the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.offset
}

func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flushing positions file: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("syncing positions file: %w", err)
	}
	return w.f.Close()
}
