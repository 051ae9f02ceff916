package ranking

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
)

const (
	k1 = 1.2

	titleBonus     = 1.0
	subjectsBonus  = 0.5
	priorityBonus  = 0.75
	coherenceScale = 2.0
)

// TermMatch is one query term's metadata in a candidate document.
type TermMatch struct {
	TermID  int64
	DocFreq int64
	Meta    wordmeta.Metadata
}

type ScoredDoc struct {
	DocID     int64   `json:"doc_id"`
	Score     float64 `json:"score"`
	Coherence float64 `json:"coherence"`
	Flags     string  `json:"flags,omitempty"`
	Span      int     `json:"span,omitempty"`
}

// Valuator combines per-term relevance with the position-mask coherence of
// the query terms.
type Valuator struct {
	totalDocs int64
}

func NewValuator(totalDocs int64) *Valuator {
	return &Valuator{totalDocs: max(totalDocs, 1)}
}

// Valuate scores one document. matches holds the required terms, all of
// which the document contains; a zero Meta is a valid word with no flags
// or positions. preferred is how many soft terms the document also has.
func (v *Valuator) Valuate(docID int64, matches []TermMatch, preferred int) ScoredDoc {
	var score float64
	var flags wordmeta.Flag
	for _, m := range matches {
		score += v.termValue(m)
		flags |= m.Meta.Flags()
	}
	score += priorityBonus * float64(max(preferred, 0))

	coherence := termCoherence(matches)
	score += coherenceScale * coherence
	if len(matches) > 0 {
		score /= float64(len(matches))
	}
	return ScoredDoc{
		DocID:     docID,
		Score:     math.Round(score*10000) / 10000,
		Coherence: math.Round(coherence*10000) / 10000,
		Flags:     flags.String(),
	}
}

func (v *Valuator) termValue(m TermMatch) float64 {
	idf := computeIDF(v.totalDocs, m.DocFreq)
	tf := float64(m.Meta.Count())
	value := idf * (tf * (k1 + 1)) / (tf + k1)
	value += float64(m.Meta.TfIdf()) / wordmeta.MaxTfIdf
	if m.Meta.HasAnyFlags(wordmeta.FlagTitle) {
		value += titleBonus
	}
	if m.Meta.HasAnyFlags(wordmeta.FlagSubjects) {
		value += subjectsBonus
	}
	return value
}

func computeIDF(totalDocs, docFreq int64) float64 {
	docFreq = min(max(docFreq, 1), totalDocs)
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// termCoherence grades term proximity in tiers. Terms flagged as title,
// subjects or synthetic get their masks from a different field, so they are
// left out of the filtered masks. Without adjacency the score is zero; with
// only adjacency it is scaled down, and a direct overlap among the filtered
// masks counts in full.
func termCoherence(matches []TermMatch) float64 {
	if len(matches) < 2 {
		return 0
	}
	const fieldFlags = wordmeta.FlagTitle | wordmeta.FlagSubjects | wordmeta.FlagSynthetic

	raw := make([]uint64, 0, len(matches))
	filtered := make([]uint64, 0, len(matches))
	for _, m := range matches {
		mask := m.Meta.PositionMask()
		raw = append(raw, mask)
		if mask != 0 && !m.Meta.HasAnyFlags(fieldFlags) {
			filtered = append(filtered, mask)
		}
	}
	if len(filtered) < 2 {
		return 0.5 * Coherence(raw...)
	}
	direct := Coherence(filtered...)
	if direct > 0 {
		return direct
	}
	return 0.25 * AdjacentCoherence(filtered...)
}
