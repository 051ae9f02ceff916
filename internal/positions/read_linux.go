//go:build linux

package positions

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// readVectored issues one preadv for the whole span, finishing any short
// read with plain positional reads.
func readVectored(f *os.File, iovs [][]byte, offset int64) error {
	total := 0
	for _, iov := range iovs {
		total += len(iov)
	}
	if total == 0 {
		return nil
	}
	n, err := unix.Preadv(int(f.Fd()), iovs, offset)
	if err != nil {
		return err
	}
	if n == total {
		return nil
	}
	if n == 0 {
		return io.ErrUnexpectedEOF
	}
	for len(iovs) > 0 && n >= len(iovs[0]) {
		n -= len(iovs[0])
		offset += int64(len(iovs[0]))
		iovs = iovs[1:]
	}
	if len(iovs) > 0 && n > 0 {
		iovs[0] = iovs[0][n:]
		offset += int64(n)
	}
	return readAtFallback(f, iovs, offset)
}
