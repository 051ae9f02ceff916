package lexicon

import (
	"cmp"
	"net/url"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/wordmeta"
)

// Document is a converted document as handed over by the crawler side.
type Document struct {
	DocID    int64    `json:"doc_id"`
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Subjects []string `json:"subjects,omitempty"`
	Links    []string `json:"links,omitempty"`
}

type termStats struct {
	flags     wordmeta.Flag
	positions []int32
}

// Analyze builds the journal entry for a document. Title words come first
// in position space and body words follow them; subjects, URL parts and
// link anchors only contribute flags.
func Analyze(doc Document) journal.Entry {
	stats := make(map[string]*termStats)
	get := func(term string) *termStats {
		s, ok := stats[term]
		if !ok {
			s = &termStats{}
			stats[term] = s
		}
		return s
	}

	titleWords := Words(doc.Title)
	for _, tok := range Tokenize(doc.Title) {
		s := get(tok.Term)
		s.flags |= wordmeta.FlagTitle
		s.positions = append(s.positions, tok.Position)
	}
	bodyTokens := Tokenize(doc.Body)
	offset := int32(len(titleWords))
	for _, tok := range bodyTokens {
		s := get(tok.Term)
		s.positions = append(s.positions, offset+tok.Position)
	}
	total := len(titleWords) + len(Words(doc.Body))

	for _, subject := range doc.Subjects {
		for _, tok := range Tokenize(subject) {
			get(tok.Term).flags |= wordmeta.FlagSubjects
		}
	}
	for _, link := range doc.Links {
		for _, tok := range Tokenize(link) {
			get(tok.Term).flags |= wordmeta.FlagExternalLink
		}
	}
	if u, err := url.Parse(doc.URL); err == nil && u.Host != "" {
		for _, part := range strings.Split(u.Hostname(), ".") {
			if term := Normalize(strings.ToLower(part)); term != "" {
				get(term).flags |= wordmeta.FlagUrlDomain | wordmeta.FlagSite
			}
		}
		for _, tok := range Tokenize(u.Path) {
			get(tok.Term).flags |= wordmeta.FlagUrlPath
		}
	}

	entry := journal.Entry{DocID: doc.DocID, Terms: make([]journal.Term, 0, len(stats))}
	for term, s := range stats {
		count := len(s.positions)
		flags := s.flags
		if count == 0 {
			flags |= wordmeta.FlagSynthetic
		}
		meta := wordmeta.Encode(flags, count, termFrequency(count, total), wordmeta.PositionMask(s.positions))
		entry.Terms = append(entry.Terms, journal.Term{
			TermID:    TermID(term),
			Meta:      int64(meta),
			Positions: s.positions,
		})
	}
	slices.SortFunc(entry.Terms, func(a, b journal.Term) int { return cmp.Compare(a.TermID, b.TermID) })
	return entry
}

// termFrequency scales the in-document frequency into the tf-idf field.
// Ranking applies idf at query time.
func termFrequency(count, total int) int {
	if count == 0 || total == 0 {
		return 0
	}
	return max(1, count*wordmeta.MaxTfIdf/total)
}
