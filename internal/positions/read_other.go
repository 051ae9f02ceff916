//go:build !linux

package positions

import "os"

func readVectored(f *os.File, iovs [][]byte, offset int64) error {
	return readAtFallback(f, iovs, offset)
}
