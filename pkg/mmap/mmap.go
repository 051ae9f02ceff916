// Package mmap maps index files into memory for zero-copy reads, and creates
// writable mappings for the offline index constructor.
//
// A Mapping owns its bytes until Close. Slices obtained from Bytes must not be
// used after Close returns; readers built on top of a mapping tie their
// lifetime to it.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// AccessPattern is a kernel hint for how a mapping will be read.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
	AccessWillNeed
)

var (
	ErrClosed        = errors.New("mmap: mapping is closed")
	ErrInvalidSize   = errors.New("mmap: invalid size")
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)

// Mapping is a memory-mapped file region.
type Mapping struct {
	data     []byte
	writable bool
	closed   atomic.Bool
	f        *os.File
}

// Open maps the file at path read-only. An empty file yields a mapping with
// no bytes.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{}, nil
	}
	data, err := osMap(f, int(size), false)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &Mapping{data: data}, nil
}

// Create truncates (or creates) the file at path to size bytes and maps it
// read-write. The file stays open until Close so that Truncate can shrink it
// to the number of bytes actually used.
func Create(path string, size int64) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s: %w", path, err)
	}
	m := &Mapping{writable: true, f: f}
	if size == 0 {
		return m, nil
	}
	data, err := osMap(f, int(size), true)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s for writing: %w", path, err)
	}
	m.data = data
	return m, nil
}

// Bytes returns the mapped bytes, or nil once closed.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Advise passes an access-pattern hint to the kernel. Failures are ignored by
// the platform layer where the hint cannot apply.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// Sync flushes a writable mapping to its file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writable || len(m.data) == 0 {
		return nil
	}
	return osSync(m.data)
}

// ReadAt implements io.ReaderAt over the mapping.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the region. For writable mappings created with a final size
// smaller than the mapped size, pass it via CloseTruncate instead.
func (m *Mapping) Close() error {
	return m.CloseTruncate(-1)
}

// CloseTruncate unmaps a writable mapping, shrinks the file to size bytes
// (when size >= 0), fsyncs and closes it. It is idempotent.
func (m *Mapping) CloseTruncate(size int64) error {
	if m.closed.Swap(true) {
		return nil
	}
	var err error
	if len(m.data) > 0 {
		if m.writable {
			err = osSync(m.data)
		}
		if unmapErr := osUnmap(m.data); unmapErr != nil && err == nil {
			err = unmapErr
		}
		m.data = nil
	}
	if m.f != nil {
		if size >= 0 && err == nil {
			err = m.f.Truncate(size)
		}
		if syncErr := m.f.Sync(); syncErr != nil && err == nil {
			err = syncErr
		}
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
