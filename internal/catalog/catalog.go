// Package catalog aggregates provider manifests into one deduplicated
// catalog and serves detailed-info lookups against it.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultInfoCacheSize = 256

	// maxConcurrentInfo bounds parallel detailed-info lookups
	maxConcurrentInfo = 4
)

// Options tune a Catalog. Zero values select defaults.
type Options struct {
	// Timeout bounds every individual provider call.
	Timeout time.Duration
	// InfoCacheSize is the number of TextInfo results kept in memory.
	InfoCacheSize int
}

// Catalog is the merged view of every registered provider's manifest.
type Catalog struct {
	registry *provider.Registry
	timeout  time.Duration

	mu      sync.RWMutex
	loaded  bool
	entries []*provider.TextEntry
	byID    map[string]*provider.TextEntry
	byAbbr  map[string]*provider.TextEntry

	group singleflight.Group
	infos *lru.Cache[string, *provider.TextInfo]
}

// New creates a catalog over registry. Nothing is fetched until first use.
func New(registry *provider.Registry, opts Options) *Catalog {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.InfoCacheSize <= 0 {
		opts.InfoCacheSize = DefaultInfoCacheSize
	}
	infos, _ := lru.New[string, *provider.TextInfo](opts.InfoCacheSize)

	return &Catalog{
		registry: registry,
		timeout:  opts.Timeout,
		byID:     make(map[string]*provider.TextEntry),
		byAbbr:   make(map[string]*provider.TextEntry),
		infos:    infos,
	}
}

// Entries returns the merged catalog, aggregating it on first use. The
// returned entries are copies.
func (c *Catalog) Entries(ctx context.Context) ([]provider.TextEntry, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]provider.TextEntry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *cloneEntry(e)
	}
	return out, nil
}

// Refresh discards the merged catalog and cached info and aggregates again.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
	c.infos.Purge()

	return c.ensure(ctx)
}

// ensure aggregates once; concurrent first callers share one aggregation.
// The aggregation itself outlives a caller that stops waiting.
func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	ch := c.group.DoChan("manifest", func() (any, error) {
		c.mu.RLock()
		done := c.loaded
		c.mu.RUnlock()
		if !done {
			c.aggregate(context.WithoutCancel(ctx))
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// aggregate asks every provider for its manifest concurrently and merges the
// results in registration order once all calls have settled.
func (c *Catalog) aggregate(ctx context.Context) {
	names := c.registry.Names()
	providers := c.registry.List()
	results := make([][]provider.TextEntry, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			results[i] = c.fetchManifest(ctx, names[i], p)
			return nil
		})
	}
	_ = g.Wait()

	m := newMerger()
	for i, name := range names {
		for _, e := range results[i] {
			m.add(name, e)
		}
	}

	debuglog.WithFields(map[string]any{"providers": len(providers), "entries": len(m.entries), "dropped": m.dropped}).
		Infof("catalog aggregated")

	c.mu.Lock()
	c.entries = m.entries
	c.byID = m.byID
	c.byAbbr = m.byAbbr
	c.loaded = true
	c.mu.Unlock()
}

func (c *Catalog) fetchManifest(ctx context.Context, name string, p provider.Provider) []provider.TextEntry {
	log := debuglog.WithFields(map[string]any{"provider": name})

	start := time.Now()
	entries, err := provider.Call(ctx, c.timeout, p.Manifest)
	if err != nil {
		log.Warnf("manifest lookup: %v", err)
		return nil
	}
	log.Debugf("manifest returned %d entries in %s", len(entries), time.Since(start))
	return entries
}

// Lookup resolves a text by id or abbreviation. The catalog must already
// have been aggregated.
func (c *Catalog) Lookup(textID string) (provider.TextEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.lookupLocked(textID)
	if e == nil {
		return provider.TextEntry{}, false
	}
	return *cloneEntry(e), true
}

func (c *Catalog) lookupLocked(textID string) *provider.TextEntry {
	key := provider.NormalizeKey(textID)
	if key == "" {
		return nil
	}
	if e, ok := c.byID[key]; ok {
		return e
	}
	return c.byAbbr[key]
}

// Owner returns the provider that serves sections for textID and the
// reference that provider knows the text by.
func (c *Catalog) Owner(ctx context.Context, textID string) (name, ref string, err error) {
	if err := c.ensure(ctx); err != nil {
		return "", "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.lookupLocked(textID)
	if e == nil {
		return "", "", fmt.Errorf("%w: %s", provider.ErrUnknownText, textID)
	}
	return e.Provider, e.ProviderRef(e.Provider), nil
}

// CanonicalID maps an id or abbreviation onto the catalog id.
func (c *Catalog) CanonicalID(ctx context.Context, textID string) (string, error) {
	if err := c.ensure(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.lookupLocked(textID)
	if e == nil {
		return "", fmt.Errorf("%w: %s", provider.ErrUnknownText, textID)
	}
	return e.ID, nil
}

// Info loads detailed structural metadata for each text id. Unknown texts
// and failed lookups are absent from the result.
func (c *Catalog) Info(ctx context.Context, textIDs ...string) (map[string]*provider.TextInfo, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = make(map[string]*provider.TextInfo, len(textIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentInfo)
	for _, id := range textIDs {
		g.Go(func() error {
			info, err := c.info(gctx, id)
			if err != nil {
				return err
			}
			if info != nil {
				mu.Lock()
				out[id] = info
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// info returns one text's info. The only error is the caller's context.
func (c *Catalog) info(ctx context.Context, textID string) (*provider.TextInfo, error) {
	c.mu.RLock()
	e := c.lookupLocked(textID)
	var snapshot *provider.TextEntry
	if e != nil {
		snapshot = cloneEntry(e)
	}
	c.mu.RUnlock()

	if snapshot == nil {
		debuglog.Debugf("info requested for unknown text %q", textID)
		return nil, nil
	}
	if info, ok := c.infos.Get(snapshot.ID); ok {
		return info, nil
	}

	ch := c.group.DoChan("info:"+snapshot.ID, func() (any, error) {
		info := c.fetchInfo(context.WithoutCancel(ctx), snapshot)
		if info != nil {
			c.infos.Add(snapshot.ID, info)
			c.annotate(snapshot.ID, info)
		}
		return info, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		info, _ := res.Val.(*provider.TextInfo)
		return info, nil
	}
}

// fetchInfo asks the owning provider first, then every other contributor.
// When no provider knows more, structure carried in the manifest is used.
func (c *Catalog) fetchInfo(ctx context.Context, e *provider.TextEntry) *provider.TextInfo {
	candidates := make([]string, 0, len(e.Sources))
	candidates = append(candidates, e.Provider)
	for _, s := range e.Sources {
		if s != e.Provider {
			candidates = append(candidates, s)
		}
	}

	for _, name := range candidates {
		p, ok := c.registry.Get(name)
		if !ok {
			continue
		}
		info, err := c.callInfo(ctx, p, e.ProviderRef(name))
		if err != nil {
			debuglog.WithFields(map[string]any{"provider": name, "text": e.ID}).
				Warnf("info lookup: %v", err)
			continue
		}
		if info != nil {
			info.TextID = e.ID
			return info
		}
	}

	if len(e.SectionIDs) > 0 {
		return &provider.TextInfo{
			TextID:        e.ID,
			Divisions:     e.Divisions,
			DivisionNames: e.DivisionNames,
			SectionIDs:    e.SectionIDs,
		}
	}
	return nil
}

func (c *Catalog) callInfo(ctx context.Context, p provider.Provider, ref string) (*provider.TextInfo, error) {
	return provider.Call(ctx, c.timeout, func(ctx context.Context) (*provider.TextInfo, error) {
		return p.Info(ctx, ref)
	})
}

// annotate fills structural metadata the manifest did not carry.
func (c *Catalog) annotate(id string, info *provider.TextInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[provider.NormalizeKey(id)]
	if !ok {
		return
	}
	fillSlice(&e.Divisions, info.Divisions)
	fillSlice(&e.DivisionNames, info.DivisionNames)
	fillSlice(&e.SectionIDs, info.SectionIDs)
}
