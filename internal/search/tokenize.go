package search

import (
	"strings"
	"unicode"
)

// token is one word of a section: its lowercase term and the word as written.
type token struct {
	term string
	word string
}

// tokenize breaks text into lowercase letter/digit runs. The whitespace
// delimited word a run came from is kept on its first run for display; later
// runs of the same word ("don't") carry an empty word.
func tokenize(text string) []token {
	var tokens []token
	for _, field := range strings.Fields(text) {
		word := field
		emit := func(run string) {
			tokens = append(tokens, token{term: strings.ToLower(run), word: word})
			word = ""
		}

		start := -1
		for i, r := range field {
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				emit(field[start:i])
				start = -1
			}
		}
		if start >= 0 {
			emit(field[start:])
		}
	}
	return tokens
}

// queryTerms tokenizes a query the same way section content is tokenized,
// dropping repeated terms.
func queryTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, t := range tokenize(query) {
		if !seen[t.term] {
			seen[t.term] = true
			terms = append(terms, t.term)
		}
	}
	return terms
}

// truncate limits text length with ellipsis, never splitting a rune
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}
