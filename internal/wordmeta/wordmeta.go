// Package wordmeta packs the per-(term, document) metadata word stored next
// to each posting.
//
// Layout, low bits first:
//
//	bits  0-7   flags
//	bits  8-11  occurrence count, clamped to [0, 15]
//	bits 12-27  tf-idf, clamped to [0, 65535]
//	bits 28-63  position bucket mask, MaskWidth bits
package wordmeta

import (
	"fmt"
	"strings"
)

type Flag uint8

const (
	FlagTitle Flag = 1 << iota
	FlagSubjects
	FlagNamesWords
	FlagSynthetic
	FlagSite
	FlagUrlDomain
	FlagUrlPath
	FlagExternalLink
)

// PriorityFlags selects the postings copied into the priority index.
const PriorityFlags = FlagTitle | FlagSubjects | FlagNamesWords | FlagSite |
	FlagUrlDomain | FlagUrlPath | FlagExternalLink

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagTitle, "title"},
	{FlagSubjects, "subjects"},
	{FlagNamesWords, "names"},
	{FlagSynthetic, "synthetic"},
	{FlagSite, "site"},
	{FlagUrlDomain, "url-domain"},
	{FlagUrlPath, "url-path"},
	{FlagExternalLink, "external-link"},
}

func (f Flag) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlag maps a flag name back to its bit.
func ParseFlag(name string) (Flag, error) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown word flag %q", name)
}

const (
	countShift = 8
	countBits  = 4
	tfidfShift = 12
	tfidfBits  = 16
	maskShift  = 28

	MaxCount = 1<<countBits - 1
	MaxTfIdf = 1<<tfidfBits - 1
)

// Metadata is one packed metadata word.
type Metadata int64

// Encode packs the fields, clamping count and tfidf into range. Mask bits
// beyond MaskWidth are dropped.
func Encode(flags Flag, count, tfidf int, mask uint64) Metadata {
	count = min(max(count, 0), MaxCount)
	tfidf = min(max(tfidf, 0), MaxTfIdf)
	mask &= fullMask
	return Metadata(uint64(flags) |
		uint64(count)<<countShift |
		uint64(tfidf)<<tfidfShift |
		mask<<maskShift)
}

func (m Metadata) Flags() Flag {
	return Flag(uint64(m) & 0xff)
}

func (m Metadata) Count() int {
	return int(uint64(m) >> countShift & MaxCount)
}

func (m Metadata) TfIdf() int {
	return int(uint64(m) >> tfidfShift & MaxTfIdf)
}

func (m Metadata) PositionMask() uint64 {
	return uint64(m) >> maskShift
}

func (m Metadata) HasAnyFlags(f Flag) bool {
	return m.Flags()&f != 0
}

func (m Metadata) IsPriority() bool {
	return m.HasAnyFlags(PriorityFlags)
}

func (m Metadata) String() string {
	return fmt.Sprintf("[flags=%s count=%d tfidf=%d mask=%09x]", m.Flags(), m.Count(), m.TfIdf(), m.PositionMask())
}
