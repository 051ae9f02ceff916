package wordmeta

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, flags := range []Flag{0, FlagTitle, FlagSite | FlagUrlPath, 0xff} {
		for count := 0; count <= MaxCount; count++ {
			for _, tfidf := range []int{0, 1, 500, MaxTfIdf} {
				for _, mask := range []uint64{0, 1, 0x5a5a5a5a5, FullMask()} {
					m := Encode(flags, count, tfidf, mask)
					require.Equal(t, flags, m.Flags())
					require.Equal(t, count, m.Count())
					require.Equal(t, tfidf, m.TfIdf())
					require.Equal(t, mask, m.PositionMask())
				}
			}
		}
	}
}

func TestClamping(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		tfidf     int
		wantCount int
		wantTfIdf int
	}{
		{"negative count", -1, 10, 0, 10},
		{"count too large", 17, 10, 15, 10},
		{"negative tfidf", 3, -40, 3, 0},
		{"tfidf too large", 3, 1 << 20, 3, MaxTfIdf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Encode(FlagTitle, tt.count, tt.tfidf, 0x3)
			assert.Equal(t, tt.wantCount, m.Count())
			assert.Equal(t, tt.wantTfIdf, m.TfIdf())
			assert.Equal(t, FlagTitle, m.Flags())
			assert.Equal(t, uint64(0x3), m.PositionMask())
		})
	}
}

func TestMaskTruncatedToWidth(t *testing.T) {
	m := Encode(0, 0, 0, ^uint64(0))
	assert.Equal(t, FullMask(), m.PositionMask())
}

func TestFlags(t *testing.T) {
	m := Encode(FlagTitle|FlagExternalLink, 1, 1, 0)
	assert.True(t, m.IsPriority())
	assert.True(t, m.HasAnyFlags(FlagExternalLink))
	assert.False(t, m.HasAnyFlags(FlagSynthetic))
	assert.False(t, Encode(FlagSynthetic, 1, 1, 0).IsPriority())
	assert.Equal(t, "title|external-link", m.Flags().String())

	f, err := ParseFlag("url-domain")
	require.NoError(t, err)
	assert.Equal(t, FlagUrlDomain, f)
	_, err = ParseFlag("bogus")
	assert.Error(t, err)
}

func TestAdjacentPositionsShareBucket(t *testing.T) {
	for p := int32(0); p < MaskWidth*BucketWidth+64; p++ {
		for d := int32(0); d <= BucketWidth/2; d++ {
			a := PositionMask([]int32{p})
			b := PositionMask([]int32{p + d})
			require.NotZero(t, a&b, "positions %d and %d", p, p+d)
		}
	}
}

func TestPositionMask(t *testing.T) {
	assert.Zero(t, PositionMask(nil))
	assert.Equal(t, uint64(0b1), PositionMask([]int32{0}))
	assert.Equal(t, uint64(0b11), PositionMask([]int32{4}))
	assert.Equal(t, uint64(1)<<(MaskWidth-1), PositionMask([]int32{100_000}))
	assert.Equal(t, 2, bits.OnesCount64(PositionMask([]int32{12})))
}
