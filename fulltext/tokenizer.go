package fulltext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenizerVersion is part of the snapshot fingerprint. Bump it whenever
// Tokenize changes its output.
const tokenizerVersion = "lxft-tokenizer/1"

// stopWords is the English stop-word list used by lunr.
var stopWords = toSet(
	"a", "able", "about", "across", "after", "all", "almost", "also", "am", "among",
	"an", "and", "any", "are", "as", "at", "be", "because", "been", "but", "by",
	"can", "cannot", "could", "dear", "did", "do", "does", "either", "else", "ever",
	"every", "for", "from", "get", "got", "had", "has", "have", "he", "her", "hers",
	"him", "his", "how", "however", "i", "if", "in", "into", "is", "it", "its",
	"just", "least", "let", "like", "likely", "may", "me", "might", "most", "must",
	"my", "neither", "no", "nor", "not", "of", "off", "often", "on", "only", "or",
	"other", "our", "own", "rather", "said", "say", "says", "she", "should", "since",
	"so", "some", "than", "that", "the", "their", "them", "then", "there", "these",
	"they", "this", "tis", "to", "too", "twas", "us", "wants", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "yet", "you", "your",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// fold applies Unicode case folding and strips combining marks, so "Élan"
// and "elan" produce the same token.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// Tokenize splits text into index terms: folded runs of letters and digits
// without stop words and single-rune tokens.
func Tokenize(text string) []string {
	return tokens(text, false)
}

// tokens tokenizes text. With prefix set the last token is kept even if it
// is short or a stop word, since it only starts a word.
func tokens(text string, prefix bool) []string {
	parts := strings.FieldsFunc(fold(text), isSeparator)
	out := parts[:0]
	for i, p := range parts {
		if prefix && i == len(parts)-1 {
			out = append(out, p)
			continue
		}
		if utf8.RuneCountInString(p) < 2 {
			continue
		}
		if _, stop := stopWords[p]; stop {
			continue
		}
		out = append(out, p)
	}
	return out
}
