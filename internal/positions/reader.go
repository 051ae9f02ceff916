package positions

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/budget"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/mmap"
	"github.com/dustin/go-humanize"
)

// Backend names accepted by Open.
const (
	BackendMmap  = "mmap"
	BackendPread = "pread"
)

// maxIovecs bounds how many buffers go into one vectorized read.
const maxIovecs = 1024

// MaxGap is how far apart two records may lie and still share one read; the
// bytes between them are read into scratch space and dropped.
const MaxGap = 4096

// Reader resolves offset words into term data. It holds no per-query state
// and is safe for concurrent use.
type Reader struct {
	path    string
	backend string
	mapping *mmap.Mapping
	file    *os.File
	size    int64
	logger  *slog.Logger
}

// Open opens the positions file with the named backend.
func Open(path, backend string) (*Reader, error) {
	r := &Reader{
		path:    path,
		backend: backend,
		logger:  slog.Default().With("component", "positions-reader"),
	}
	switch backend {
	case BackendMmap, "":
		r.backend = BackendMmap
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mapping positions file: %w", err)
		}
		_ = m.Advise(mmap.AccessRandom)
		r.mapping = m
		r.size = int64(m.Size())
	case BackendPread:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening positions file: %w", err)
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat positions file: %w", err)
		}
		r.file = f
		r.size = fi.Size()
	default:
		return nil, apperrors.Invalidf("unknown positions backend %q", backend)
	}
	r.logger.Debug("positions file opened", "path", path, "backend", r.backend, "size", humanize.Bytes(uint64(r.size)))
	return r, nil
}

func (r *Reader) Backend() string { return r.backend }

func (r *Reader) Size() int64 { return r.size }

// request is one non-zero offset word awaiting its bytes.
type request struct {
	idx    int
	offset int64
	size   int
}

// span is a run of records covered by one read. iovs counts the record and
// gap buffers the read needs.
type span struct {
	offset int64
	end    int64
	iovs   int
	reqs   []request
}

// GetTermData resolves offsets into term data, returning a slice parallel to
// offsets with nil at every zero word. Records are sorted by file offset and
// those at most MaxGap bytes apart are coalesced into a single read, so
// callers should pass every offset a query needs in one call. The budget is checked
// before every read; once it runs out the whole call fails with ErrTimeout.
func (r *Reader) GetTermData(b *budget.Budget, offsets []int64) ([]*TermData, error) {
	out := make([]*TermData, len(offsets))

	reqs := make([]request, 0, len(offsets))
	for i, word := range offsets {
		if word == 0 {
			continue
		}
		req := request{idx: i, offset: DecodeOffset(word), size: DecodeSize(word)}
		if req.offset+int64(req.size) > r.size {
			return nil, apperrors.Corruptf("positions record [%d,+%d) past end of %s (%d bytes)",
				req.offset, req.size, r.path, r.size)
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return out, nil
	}

	slices.SortFunc(reqs, func(a, b request) int { return cmp.Compare(a.offset, b.offset) })

	for _, sp := range coalesce(reqs, MaxGap) {
		if err := b.Check(); err != nil {
			return nil, fmt.Errorf("reading term data: %w", err)
		}
		bufs, err := r.readSpan(sp)
		if err != nil {
			return nil, err
		}
		for i, req := range sp.reqs {
			out[req.idx] = NewTermData(bufs[i])
		}
	}
	return out, nil
}

// coalesce groups sorted requests into spans whose records lie at most
// maxGap bytes apart. Repeated offsets stay in the span and share the
// earlier record's bytes.
func coalesce(reqs []request, maxGap int64) []span {
	var spans []span
	for _, req := range reqs {
		if n := len(spans); n > 0 {
			cur := &spans[n-1]
			last := cur.reqs[len(cur.reqs)-1]
			if req.offset == last.offset && req.size == last.size {
				cur.reqs = append(cur.reqs, req)
				continue
			}
			gap := req.offset - cur.end
			need := 1
			if gap > 0 {
				need++
			}
			if gap >= 0 && gap <= maxGap && cur.iovs+need <= maxIovecs {
				cur.reqs = append(cur.reqs, req)
				cur.end = req.offset + int64(req.size)
				cur.iovs += need
				continue
			}
		}
		spans = append(spans, span{
			offset: req.offset,
			end:    req.offset + int64(req.size),
			iovs:   1,
			reqs:   []request{req},
		})
	}
	return spans
}

func (r *Reader) readSpan(sp span) ([][]byte, error) {
	bufs := make([][]byte, len(sp.reqs))
	if r.mapping != nil {
		data := r.mapping.Bytes()
		for i, req := range sp.reqs {
			bufs[i] = data[req.offset : req.offset+int64(req.size)]
		}
		return bufs, nil
	}

	// Duplicates point at the first copy; gaps between records land in a
	// shared scratch buffer.
	iovs := make([][]byte, 0, sp.iovs)
	var scratch []byte
	cursor := sp.offset
	for i, req := range sp.reqs {
		if i > 0 && req.offset == sp.reqs[i-1].offset {
			bufs[i] = bufs[i-1]
			continue
		}
		if gap := int(req.offset - cursor); gap > 0 {
			if scratch == nil {
				scratch = make([]byte, MaxGap)
			}
			iovs = append(iovs, scratch[:gap])
		}
		bufs[i] = make([]byte, req.size)
		iovs = append(iovs, bufs[i])
		cursor = req.offset + int64(req.size)
	}
	if err := readVectored(r.file, iovs, sp.offset); err != nil {
		return nil, fmt.Errorf("reading positions span at %d: %w", sp.offset, err)
	}
	return bufs, nil
}

// readAtFallback fills iovs from consecutive file offsets with ReadAt.
func readAtFallback(f *os.File, iovs [][]byte, offset int64) error {
	for _, iov := range iovs {
		if _, err := f.ReadAt(iov, offset); err != nil {
			return err
		}
		offset += int64(len(iov))
	}
	return nil
}

func (r *Reader) Close() error {
	if r.mapping != nil {
		return r.mapping.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
