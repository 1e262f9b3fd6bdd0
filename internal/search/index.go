package search

import (
	"sort"
	"strings"

	"github.com/pders01/lectern/internal/provider"
)

// maxSnippetLength caps the rendered context around a match
const maxSnippetLength = 240

// Posting records one occurrence of a term.
type Posting struct {
	Section  int // ordinal in Index.Sections
	Position int // token ordinal within the section
}

// Index is the token index of one text.
type Index struct {
	TextID   string
	Sections []string

	words    [][]string
	postings map[string][]Posting
}

// buildIndex indexes sections in the given (canonical) order.
func buildIndex(textID string, sections []*provider.Section) *Index {
	idx := &Index{
		TextID:   textID,
		Sections: make([]string, len(sections)),
		words:    make([][]string, len(sections)),
		postings: make(map[string][]Posting),
	}
	for i, s := range sections {
		idx.Sections[i] = s.SectionID
		tokens := tokenize(provider.PlainText(s.Format, s.Content))
		words := make([]string, len(tokens))
		for pos, t := range tokens {
			words[pos] = t.word
			idx.postings[t.term] = append(idx.postings[t.term], Posting{Section: i, Position: pos})
		}
		idx.words[i] = words
	}
	return idx
}

// Postings returns the ordered postings for term
func (idx *Index) Postings(term string) []Posting {
	return idx.postings[term]
}

// Terms reports the number of distinct terms
func (idx *Index) Terms() int {
	return len(idx.postings)
}

// match returns one match per section containing every term, in section order.
func (idx *Index) match(terms []string, contextTokens int) []Match {
	if len(terms) == 0 {
		return nil
	}

	// per term: section → occurrence count, plus first position of the first term
	counts := make([]map[int]int, len(terms))
	for i, term := range terms {
		postings := idx.postings[term]
		if len(postings) == 0 {
			return nil
		}
		counts[i] = make(map[int]int)
		for _, p := range postings {
			counts[i][p.Section]++
		}
	}

	first := make(map[int]int)
	for _, p := range idx.postings[terms[0]] {
		if _, ok := first[p.Section]; !ok {
			first[p.Section] = p.Position
		}
	}

	var sections []int
	for s := range counts[0] {
		inAll := true
		for _, c := range counts[1:] {
			if c[s] == 0 {
				inAll = false
				break
			}
		}
		if inAll {
			sections = append(sections, s)
		}
	}
	sort.Ints(sections)

	matches := make([]Match, 0, len(sections))
	for _, s := range sections {
		score := 0.0
		for _, c := range counts {
			score += float64(c[s])
		}
		pos := first[s]
		matches = append(matches, Match{
			TextID:    idx.TextID,
			SectionID: idx.Sections[s],
			Position:  pos,
			Snippet:   idx.snippet(s, pos, contextTokens),
			Score:     score,
		})
	}
	return matches
}

// snippet returns the words around pos within section s
func (idx *Index) snippet(s, pos, contextTokens int) string {
	words := idx.words[s]
	start := max(0, pos-contextTokens)
	end := min(len(words), pos+contextTokens+1)
	// widen to the start of a word split into several runs ("don't")
	for start > 0 && words[start] == "" {
		start--
	}

	parts := make([]string, 0, end-start)
	for _, w := range words[start:end] {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return truncate(strings.Join(parts, " "), maxSnippetLength)
}
