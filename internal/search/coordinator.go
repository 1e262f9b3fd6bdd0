// Package search runs full-text queries across the active texts, using a
// provider's own search where available and a lazily built token index
// otherwise.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
)

const (
	DefaultContextTokens = 5

	maxConcurrentTexts = 4
)

// Catalog is the part of the merged catalog the coordinator needs.
type Catalog interface {
	CanonicalID(ctx context.Context, textID string) (string, error)
	Owner(ctx context.Context, textID string) (name, ref string, err error)
	Lookup(textID string) (provider.TextEntry, bool)
	Info(ctx context.Context, textIDs ...string) (map[string]*provider.TextInfo, error)
}

// Sections loads section content, typically through the session cache.
type Sections interface {
	LoadMany(ctx context.Context, textID string, sectionIDs []string) []*provider.Section
}

// Options adjust a search.
type Options struct {
	// Limit caps the number of matches; 0 means unlimited.
	Limit int
	// Ranked orders matches by score instead of canonical order.
	Ranked bool
	// ContextTokens is the number of words shown either side of a match.
	// 0 selects DefaultContextTokens; negative shows only the matched word.
	ContextTokens int
}

// Match is one section containing every query term.
type Match struct {
	TextID    string
	SectionID string
	Position  int
	Snippet   string
	Score     float64
}

// Skipped records a text left out of a result and why.
type Skipped struct {
	TextID string
	Err    error
}

// Results is the outcome of one search.
type Results struct {
	Query   string
	Terms   []string
	Matches []Match
	Skipped []Skipped
}

// Coordinator executes searches and owns the per-text indexes.
type Coordinator struct {
	registry *provider.Registry
	catalog  Catalog
	sections Sections

	mu      sync.RWMutex
	indexes map[string]*Index

	group singleflight.Group
}

// NewCoordinator creates a coordinator. Indexes are built on first query.
func NewCoordinator(registry *provider.Registry, catalog Catalog, sections Sections) *Coordinator {
	return &Coordinator{
		registry: registry,
		catalog:  catalog,
		sections: sections,
		indexes:  make(map[string]*Index),
	}
}

// Search finds sections containing every query term across textIDs. Texts
// that cannot be searched are reported in Results.Skipped; the only error
// returned is the caller's context ending.
func (c *Coordinator) Search(ctx context.Context, query string, textIDs []string, opts Options) (*Results, error) {
	res := &Results{Query: query, Terms: queryTerms(query)}
	textIDs = uniqueIDs(textIDs)
	if len(res.Terms) == 0 || len(textIDs) == 0 {
		return res, nil
	}

	contextTokens := opts.ContextTokens
	if contextTokens == 0 {
		contextTokens = DefaultContextTokens
	}
	if contextTokens < 0 {
		contextTokens = 0
	}

	type outcome struct {
		matches []Match
		err     error
	}
	outcomes := make([]outcome, len(textIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTexts)
	for i, id := range textIDs {
		g.Go(func() error {
			matches, err := c.searchText(gctx, id, res.Terms, opts, contextTokens)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = outcome{matches: matches, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, o := range outcomes {
		if o.err != nil {
			res.Skipped = append(res.Skipped, Skipped{TextID: textIDs[i], Err: o.err})
			continue
		}
		res.Matches = append(res.Matches, o.matches...)
	}

	if opts.Ranked {
		sort.SliceStable(res.Matches, func(i, j int) bool {
			return res.Matches[i].Score > res.Matches[j].Score
		})
	}
	if opts.Limit > 0 && len(res.Matches) > opts.Limit {
		res.Matches = res.Matches[:opts.Limit]
	}
	return res, nil
}

// searchText evaluates the query against one text.
func (c *Coordinator) searchText(ctx context.Context, textID string, terms []string, opts Options, contextTokens int) ([]Match, error) {
	log := debuglog.WithFields(map[string]any{"text": textID})

	id, err := c.catalog.CanonicalID(ctx, textID)
	if err != nil {
		log.Debugf("skipping text: %v", err)
		return nil, err
	}

	if matches, ok := c.nativeSearch(ctx, id, terms, opts); ok {
		return matches, nil
	}

	idx, err := c.Index(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("excluded from search: %v", err)
		}
		return nil, err
	}
	return idx.match(terms, contextTokens), nil
}

// nativeSearch delegates to the owning provider's own search, if it has one.
// ok is false when the generic index should be used instead.
func (c *Coordinator) nativeSearch(ctx context.Context, id string, terms []string, opts Options) ([]Match, bool) {
	name, ref, err := c.catalog.Owner(ctx, id)
	if err != nil {
		return nil, false
	}
	p, ok := c.registry.Get(name)
	if !ok {
		return nil, false
	}
	searcher, ok := p.(provider.Searcher)
	if !ok {
		return nil, false
	}

	hits, err := provider.Call(ctx, 0, func(ctx context.Context) ([]provider.Hit, error) {
		return searcher.Search(ctx, ref, terms, 0)
	})
	if err != nil {
		debuglog.WithFields(map[string]any{"text": id, "provider": name}).
			Warnf("native search failed, using token index: %v", err)
		return nil, false
	}

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{TextID: id, SectionID: h.SectionID, Position: h.Position, Snippet: h.Snippet, Score: h.Score}
	}
	if !opts.Ranked {
		c.sortCanonical(ctx, id, matches)
	}
	return matches, true
}

// sortCanonical orders matches by the text's section order when it is known.
func (c *Coordinator) sortCanonical(ctx context.Context, id string, matches []Match) {
	infos, err := c.catalog.Info(ctx, id)
	if err != nil || infos[id] == nil {
		return
	}
	order := make(map[string]int, len(infos[id].SectionIDs))
	for i, sid := range infos[id].SectionIDs {
		order[sid] = i
	}
	rank := func(sid string) int {
		if r, ok := order[sid]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return rank(matches[i].SectionID) < rank(matches[j].SectionID)
	})
}

// Index returns the token index for a catalog text id, building it on first
// use. Concurrent callers share one build; a build outlives callers that stop
// waiting. Failed builds are not memoized.
func (c *Coordinator) Index(ctx context.Context, id string) (*Index, error) {
	c.mu.RLock()
	idx, ok := c.indexes[id]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	ch := c.group.DoChan(id, func() (any, error) {
		c.mu.RLock()
		idx, ok := c.indexes[id]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		idx, err := c.build(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.indexes[id] = idx
		c.mu.Unlock()
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

func (c *Coordinator) build(ctx context.Context, id string) (*Index, error) {
	entry, ok := c.catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", provider.ErrIndexBuild, id, provider.ErrUnknownText)
	}
	if !entry.HasText {
		return nil, fmt.Errorf("%w: %s has no text content", provider.ErrIndexBuild, id)
	}

	infos, err := c.catalog.Info(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", provider.ErrIndexBuild, id, err)
	}
	info := infos[id]
	if info == nil || len(info.SectionIDs) == 0 {
		return nil, fmt.Errorf("%w: %s: section list unavailable", provider.ErrIndexBuild, id)
	}

	sections := c.sections.LoadMany(ctx, id, info.SectionIDs)
	var missing []string
	for i, s := range sections {
		if s == nil {
			missing = append(missing, info.SectionIDs[i])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s: sections unavailable: %s", provider.ErrIndexBuild, id, strings.Join(missing, ", "))
	}

	idx := buildIndex(id, sections)
	debuglog.WithFields(map[string]any{"text": id, "sections": len(sections), "terms": idx.Terms()}).
		Infof("search index built")
	return idx, nil
}

// Indexed reports the ids of texts with a built index
func (c *Coordinator) Indexed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.indexes))
	for id := range c.indexes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset drops every built index.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = make(map[string]*Index)
}

// uniqueIDs drops repeated ids, keeping the first occurrence
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		key := provider.NormalizeKey(id)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// IsIndexBuildFailure reports whether err excluded a text because its index
// could not be built.
func IsIndexBuildFailure(err error) bool {
	return errors.Is(err, provider.ErrIndexBuild)
}
