// Package ranking scores candidate documents from the per-term metadata
// stored in the full index.
package ranking

import (
	"math"
	"math/bits"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
)

var coherenceNorm = math.Log1p(wordmeta.MaskWidth)

// Coherence estimates how tightly terms co-occur from their position masks.
// The masks are ANDed and the popcount mapped through log1p and normalized,
// so every bucket shared scores 1.0 and no shared bucket scores 0.
func Coherence(masks ...uint64) float64 {
	if len(masks) == 0 {
		return 0
	}
	combined := wordmeta.FullMask()
	for _, m := range masks {
		combined &= m
	}
	return scoreMask(combined)
}

// AdjacentCoherence widens each mask by one bucket on either side before
// combining, so terms in neighbouring buckets still overlap.
func AdjacentCoherence(masks ...uint64) float64 {
	if len(masks) == 0 {
		return 0
	}
	combined := wordmeta.FullMask()
	for _, m := range masks {
		combined &= widen(m)
	}
	return scoreMask(combined)
}

func widen(m uint64) uint64 {
	return (m | m<<1 | m>>1) & wordmeta.FullMask()
}

func scoreMask(m uint64) float64 {
	return math.Log1p(float64(bits.OnesCount64(m&wordmeta.FullMask()))) / coherenceNorm
}
