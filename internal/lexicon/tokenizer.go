// Package lexicon turns text into terms and term IDs. Indexing and query
// parsing share it so that both sides hash the same normalized forms.
package lexicon

import (
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
	"this": {}, "but": {}, "if": {}, "so": {},
}

// Token is a normalized term and the index of its word in the source text.
// Stop words are dropped but still advance the position.
type Token struct {
	Term     string
	Position int32
}

// Tokenize lower-cases text, splits it on anything that is not a letter or
// digit and stems what remains.
func Tokenize(text string) []Token {
	words := Words(text)
	tokens := make([]Token, 0, len(words))
	for i, w := range words {
		term := Normalize(w)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: int32(i)})
	}
	return tokens
}

// Words splits text into lower-cased words without filtering.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize returns the indexed form of a single lower-cased word, or ""
// when the word is not indexed.
func Normalize(word string) string {
	if len(word) < 2 {
		return ""
	}
	if _, ok := stopWords[word]; ok {
		return ""
	}
	return stem(word)
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"izing", "ize", 2},
	{"iness", "y", 2},
	{"ments", "ment", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixes {
		if base, ok := strings.CutSuffix(word, rule.suffix); ok {
			if len(base)+len(rule.replacement) >= rule.minLen {
				return base + rule.replacement
			}
		}
	}
	return word
}

// TermID hashes a normalized term. IDs are non-negative and never equal
// math.MaxInt64, which the index reserves as a sentinel.
func TermID(term string) int64 {
	id := int64(xxhash.Sum64String(term) >> 1)
	if id == math.MaxInt64 {
		id--
	}
	return id
}
