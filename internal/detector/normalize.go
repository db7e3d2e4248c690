package detector

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and strips diacritics so "Élan" and "elan" compare
// equal. Runs of whitespace collapse to a single space and punctuation is
// trimmed from the edges of each word.
func Normalize(value string) string {
	return strings.Join(normalizedTokens(value), " ")
}

func normalizedTokens(value string) []string {
	folded := foldString(value)
	fields := strings.Fields(folded)
	out := fields[:0]
	for _, field := range fields {
		if token := trimPunctuation(field); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// foldString builds fresh transformers per call; transform chains and casers
// carry state and must not be shared between goroutines.
func foldString(value string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, value)
	if err != nil {
		stripped = value
	}
	return cases.Fold().String(stripped)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func trimPunctuation(value string) string {
	return strings.TrimFunc(value, func(r rune) bool { return !isWordRune(r) })
}

// token is a word in the scanned content with rune offsets into the original
// text and its normalized form.
type token struct {
	start int
	end   int
	norm  string
	// endsSentence is set when the raw word closes a sentence or clause.
	endsSentence bool
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '…':
		return true
	}
	return false
}

// tokenize splits masked content on whitespace, trimming punctuation from
// each word. Offsets refer to the trimmed word. A word followed by terminal
// punctuation marks a sentence break.
func tokenize(text []rune) []token {
	var tokens []token
	i := 0
	for i < len(text) {
		for i < len(text) && unicode.IsSpace(text[i]) {
			i++
		}
		start := i
		for i < len(text) && !unicode.IsSpace(text[i]) {
			i++
		}
		end := i
		rawEnd := end
		for start < end && !isWordRune(text[start]) {
			start++
		}
		for end > start && !isWordRune(text[end-1]) {
			end--
		}
		if start >= end {
			continue
		}
		normalized := Normalize(string(text[start:end]))
		if normalized == "" {
			continue
		}
		breaks := strings.ContainsFunc(string(text[end:rawEnd]), isSentenceBreak)
		tokens = append(tokens, token{start: start, end: end, norm: normalized, endsSentence: breaks})
	}
	return tokens
}
