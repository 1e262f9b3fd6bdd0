package local

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
)

const (
	// analyzerName keeps stop words: every query term must be matchable.
	analyzerName  = "lectern_text"
	tokenizerName = "lectern_words"

	// wordPattern splits text into letter/digit runs, the same way queries
	// are split into terms, so "don't" indexes as "don" and "t".
	wordPattern = `[\p{L}\p{N}]+`

	snippetRadius = 80
)

// textIndex is the in-memory bleve index of one text's sections.
type textIndex struct {
	idx      bleve.Index
	sections int
}

func (t *textIndex) Close() error {
	return t.idx.Close()
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomTokenizer(tokenizerName, map[string]any{
		"type":   regexp.Name,
		"regexp": wordPattern,
	})
	if err != nil {
		return nil, fmt.Errorf("adding tokenizer: %w", err)
	}
	err = im.AddCustomAnalyzer(analyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("adding analyzer: %w", err)
	}
	im.DefaultAnalyzer = analyzerName

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = analyzerName
	title.Store = true
	title.IncludeTermVectors = false

	content := bleve.NewTextFieldMapping()
	content.Analyzer = analyzerName
	content.Store = true
	content.IncludeTermVectors = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("content", content)

	im.DefaultMapping = dm
	return im, nil
}

// index returns the search index for ref, building it from the store on
// first use.
func (p *Provider) index(ref string) (*textIndex, error) {
	key := provider.NormalizeKey(ref)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("local provider is closed")
	}
	if ti, ok := p.indexes[key]; ok {
		return ti, nil
	}

	sections, err := p.store.GetSections(ref)
	if err != nil {
		return nil, fmt.Errorf("loading sections of %s: %w", ref, err)
	}

	im, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	batch := idx.NewBatch()
	for _, s := range sections {
		if err := batch.Index(s.SectionID, map[string]any{
			"title":   s.Title,
			"content": provider.PlainText(s.Format, s.Content),
		}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("indexing section %s: %w", s.SectionID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("executing batch: %w", err)
	}

	ti := &textIndex{idx: idx, sections: len(sections)}
	p.indexes[key] = ti
	debuglog.WithFields(map[string]any{"text": ref, "sections": len(sections)}).
		Debugf("local search index built")
	return ti, nil
}

// Search returns the sections of ref containing every term, best first.
func (p *Provider) Search(ctx context.Context, ref string, terms []string, limit int) ([]provider.Hit, error) {
	if len(terms) == 0 {
		return []provider.Hit{}, nil
	}
	ti, err := p.index(ref)
	if err != nil {
		return nil, err
	}

	qs := make([]bleveQuery.Query, 0, len(terms))
	for _, term := range terms {
		q := bleve.NewMatchQuery(term)
		q.SetField("content")
		qs = append(qs, q)
	}

	size := limit
	if size <= 0 {
		size = ti.sections
	}
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(qs...), size, 0, false)
	req.Fields = []string{"content"}
	req.IncludeLocations = true

	res, err := ti.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", ref, err)
	}

	hits := make([]provider.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := provider.Hit{SectionID: h.ID, Score: h.Score}
		content, _ := h.Fields["content"].(string)
		if locs := h.Locations["content"]; locs != nil {
			for _, term := range terms {
				if l := locs[term]; len(l) > 0 {
					hit.Position = int(l[0].Pos) - 1
					hit.Snippet = snippetAround(content, int(l[0].Start), int(l[0].End))
					break
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// snippetAround returns the whole words within snippetRadius bytes of
// content[start:end].
func snippetAround(content string, start, end int) string {
	if start < 0 || end > len(content) || start > end {
		return ""
	}
	from := max(0, start-snippetRadius)
	for from > 0 && !utf8.RuneStart(content[from]) {
		from--
	}
	to := min(len(content), end+snippetRadius)
	for to < len(content) && !utf8.RuneStart(content[to]) {
		to++
	}

	words := strings.Fields(content[from:to])
	if from > 0 && len(words) > 1 && content[from-1] != ' ' {
		words = words[1:]
	}
	if to < len(content) && len(words) > 1 && content[to] != ' ' {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
