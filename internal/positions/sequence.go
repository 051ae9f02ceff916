package positions

import (
	"encoding/binary"

	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
)

// EncodeSequence lays out a term-data record: the flags byte followed by the
// uvarint deltas of strictly increasing positions, the first delta taken
// from zero.
func EncodeSequence(flags byte, positions []int32) ([]byte, error) {
	out := make([]byte, 1, 1+len(positions))
	out[0] = flags
	return appendDeltas(out, positions)
}

func appendDeltas(out []byte, positions []int32) ([]byte, error) {
	prev := int32(-1)
	for i, p := range positions {
		if p < 0 {
			return nil, apperrors.Invalidf("negative position %d at index %d", p, i)
		}
		if p <= prev {
			return nil, apperrors.Invalidf("positions not strictly increasing at index %d: %d after %d", i, p, prev)
		}
		delta := p
		if i > 0 {
			delta = p - prev
		}
		out = binary.AppendUvarint(out, uint64(delta))
		prev = p
	}
	return out, nil
}

// TermData is one decoded record. Its bytes may alias a memory mapping and
// are only valid while the owning generation is held.
type TermData struct {
	raw []byte
}

func NewTermData(raw []byte) *TermData {
	return &TermData{raw: raw}
}

func (d *TermData) Flags() byte {
	if len(d.raw) == 0 {
		return 0
	}
	return d.raw[0]
}

func (d *TermData) Bytes() []byte {
	return d.raw
}

// Positions decodes the position list.
func (d *TermData) Positions() ([]int32, error) {
	if len(d.raw) <= 1 {
		return nil, nil
	}
	buf := d.raw[1:]
	out := make([]int32, 0, len(buf))
	var cur int64
	for len(buf) > 0 {
		delta, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, apperrors.Corruptf("malformed position delta at byte %d", len(d.raw)-len(buf))
		}
		if len(out) > 0 && delta == 0 {
			return nil, apperrors.Corruptf("zero position delta at byte %d", len(d.raw)-len(buf))
		}
		cur += int64(delta)
		if cur > 1<<31-1 {
			return nil, apperrors.Corruptf("position overflow at byte %d", len(d.raw)-len(buf))
		}
		out = append(out, int32(cur))
		buf = buf[n:]
	}
	return out, nil
}
