// Package positions stores per-(term, document) position lists in a flat
// positions file and resolves many of them per query with batched reads.
//
// Each record is addressed by a single int64 word packing its byte length
// into the top 16 bits and its file offset into the low 48. A zero word
// means the posting carries no positions.
package positions

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

const (
	offsetBits = 48
	offsetMask = int64(1)<<offsetBits - 1

	MaxOffset = int64(1) << offsetBits
	MaxLength = 1 << 16
)

// Encode packs a record length and offset into one word.
func Encode(length int, offset int64) (int64, error) {
	if offset < 0 || offset >= MaxOffset {
		return 0, apperrors.Invalidf("positions offset %d not representable in %d bits", offset, offsetBits)
	}
	if length < 0 || length >= MaxLength {
		return 0, apperrors.Invalidf("positions record length %d out of range", length)
	}
	return int64(uint64(length)<<offsetBits | uint64(offset)), nil
}

func DecodeSize(word int64) int {
	return int(uint64(word) >> offsetBits)
}

func DecodeOffset(word int64) int64 {
	return word & offsetMask
}
