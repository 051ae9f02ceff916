package wordmeta

const (
	// MaskWidth is the number of position buckets in a mask.
	MaskWidth = 36
	// BucketWidth is the number of word positions per bucket.
	BucketWidth = 8

	fullMask = uint64(1)<<MaskWidth - 1
)

// FullMask has every bucket set.
func FullMask() uint64 { return fullMask }

// PositionMask buckets word positions into a MaskWidth-bit mask. Position p
// sets bucket p/B and bucket (p+B/2)/B, so positions at most B/2 apart always
// share a bit. Positions past the last bucket land in it.
func PositionMask(positions []int32) uint64 {
	var mask uint64
	for _, p := range positions {
		if p < 0 {
			continue
		}
		mask |= 1 << bucket(int(p))
		mask |= 1 << bucket(int(p)+BucketWidth/2)
	}
	return mask
}

func bucket(p int) uint {
	return uint(min(p/BucketWidth, MaskWidth-1))
}
