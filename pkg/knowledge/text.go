package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopwords are dropped before similarity scoring. Numbers are never
// dropped: years and quantities carry most of a factual claim.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "by": true,
	"is": true, "was": true, "were": true, "are": true, "be": true, "been": true,
	"it": true, "its": true, "as": true, "with": true, "that": true, "this": true,
	"which": true, "from": true, "has": true, "have": true, "had": true,
	"s": true, "also": true, "who": true, "what": true, "when": true,
}

// Normalize applies NFKC folding and lower-casing.
func Normalize(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// Tokenize splits normalized text into words and numbers.
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// contentTokens returns tokens with stopwords removed.
func contentTokens(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0]
	for _, t := range tokens {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeTopic canonicalizes a topic key: lower-case words joined by a
// single space.
func NormalizeTopic(topic string) string {
	return strings.Join(Tokenize(topic), " ")
}
