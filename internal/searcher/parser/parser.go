// Package parser turns a search string into required, excluded and
// preferred term IDs.
//
// Syntax: bare or "+"-prefixed words are required, "-"-prefixed words and
// words after NOT are excluded, and "~"-prefixed words are preferred: they
// boost documents that have them without being required. AND is accepted
// and ignored; every required word must match.
package parser

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/lexicon"
)

type Term struct {
	Text string `json:"text"`
	ID   int64  `json:"id"`
}

type QueryPlan struct {
	Include  []Term
	Exclude  []Term
	Prefer   []Term
	RawQuery string
}

type role int

const (
	roleInclude role = iota
	roleExclude
	rolePrefer
)

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{RawQuery: query}
	seen := make(map[int64]struct{})
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		r := roleInclude
		switch word[0] {
		case '-':
			r, word = roleExclude, word[1:]
		case '+':
			word = word[1:]
		case '~':
			r, word = rolePrefer, word[1:]
		}
		if excludeNext {
			r, excludeNext = roleExclude, false
		}
		for _, tok := range lexicon.Tokenize(word) {
			id := lexicon.TermID(tok.Term)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			t := Term{Text: tok.Term, ID: id}
			switch r {
			case roleInclude:
				plan.Include = append(plan.Include, t)
			case roleExclude:
				plan.Exclude = append(plan.Exclude, t)
			case rolePrefer:
				plan.Prefer = append(plan.Prefer, t)
			}
		}
	}
	return plan
}

// IsEmpty reports whether the plan has nothing to search for.
func (p *QueryPlan) IsEmpty() bool { return len(p.Include) == 0 }

// Canonical renders the plan independent of word order and spelling
// variants that normalize to the same terms.
func (p *QueryPlan) Canonical() string {
	return fmt.Sprintf("+%s|-%s|~%s", joinSorted(p.Include), joinSorted(p.Exclude), joinSorted(p.Prefer))
}

func joinSorted(terms []Term) string {
	texts := make([]string, len(terms))
	for i, t := range terms {
		texts[i] = t.Text
	}
	slices.SortFunc(texts, cmp.Compare[string])
	return strings.Join(texts, ",")
}
