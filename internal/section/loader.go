// Package section routes section retrieval to the owning provider and
// caches the results for the session.
package section

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
)

const (
	DefaultTimeout = 20 * time.Second

	maxConcurrentLoads = 4
)

// Owners resolves which provider serves a text. Implemented by *catalog.Catalog.
type Owners interface {
	Owner(ctx context.Context, textID string) (name, ref string, err error)
	CanonicalID(ctx context.Context, textID string) (string, error)
}

// Loader retrieves sections through a session cache. Concurrent requests for
// the same section share one provider call.
//
// Returned sections are shared between callers and must not be modified.
type Loader struct {
	registry *provider.Registry
	owners   Owners
	timeout  time.Duration

	mu      sync.RWMutex
	entries map[provider.SectionKey]provider.CacheEntry

	group singleflight.Group
	now   func() time.Time
}

// NewLoader creates a loader. A zero timeout selects DefaultTimeout.
func NewLoader(registry *provider.Registry, owners Owners, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Loader{
		registry: registry,
		owners:   owners,
		timeout:  timeout,
		entries:  make(map[provider.SectionKey]provider.CacheEntry),
		now:      time.Now,
	}
}

// Load returns the section, or nil when it cannot be retrieved. A caller
// whose ctx ends stops waiting, but the retrieval still completes and its
// result is cached for later callers.
func (l *Loader) Load(ctx context.Context, textID, sectionID string) *provider.Section {
	log := debuglog.WithFields(map[string]any{"text": textID, "section": sectionID})

	canonical, err := l.owners.CanonicalID(ctx, textID)
	if err != nil {
		log.Debugf("%v", fmt.Errorf("%w: %w", provider.ErrSectionNotFound, err))
		return nil
	}
	key := provider.SectionKey{TextID: canonical, SectionID: sectionID}

	if entry, ok := l.Entry(key); ok {
		return entry.Section
	}

	ch := l.group.DoChan(key.String(), func() (any, error) {
		if entry, ok := l.Entry(key); ok {
			return entry.Section, nil
		}
		return l.fetch(context.WithoutCancel(ctx), key), nil
	})

	select {
	case <-ctx.Done():
		log.Debugf("caller stopped waiting: %v", ctx.Err())
		return nil
	case res := <-ch:
		s, _ := res.Val.(*provider.Section)
		return s
	}
}

// LoadMany loads several sections of one text concurrently. The result is
// index-aligned with sectionIDs; missing sections are nil.
func (l *Loader) LoadMany(ctx context.Context, textID string, sectionIDs []string) []*provider.Section {
	out := make([]*provider.Section, len(sectionIDs))

	var g errgroup.Group
	g.SetLimit(maxConcurrentLoads)
	for i, sid := range sectionIDs {
		g.Go(func() error {
			out[i] = l.Load(ctx, textID, sid)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetch performs the single underlying retrieval for key. Failures are
// logged and not cached.
func (l *Loader) fetch(ctx context.Context, key provider.SectionKey) *provider.Section {
	log := debuglog.WithFields(map[string]any{"text": key.TextID, "section": key.SectionID})

	name, ref, err := l.owners.Owner(ctx, key.TextID)
	if err != nil {
		log.Warnf("%v", fmt.Errorf("%w: %w", provider.ErrSectionNotFound, err))
		return nil
	}
	p, ok := l.registry.Get(name)
	if !ok {
		log.Warnf("%v: owning provider %q is not registered", provider.ErrSectionNotFound, name)
		return nil
	}
	log = log.With("provider", name)

	start := l.now()
	s, err := l.call(ctx, p, ref, key.SectionID)
	if err != nil {
		log.Warnf("section retrieval: %v", err)
		return nil
	}
	if s == nil {
		log.Debugf("%v", provider.ErrSectionNotFound)
		return nil
	}

	cp := *s
	cp.TextID = key.TextID
	cp.SectionID = key.SectionID
	if cp.Format == "" {
		cp.Format = provider.FormatText
	}

	l.mu.Lock()
	l.entries[key] = provider.CacheEntry{Section: &cp, FetchedAt: l.now(), Provider: name}
	l.mu.Unlock()

	log.Debugf("section retrieved in %s", l.now().Sub(start))
	return &cp
}

func (l *Loader) call(ctx context.Context, p provider.Provider, ref, sectionID string) (*provider.Section, error) {
	return provider.Call(ctx, l.timeout, func(ctx context.Context) (*provider.Section, error) {
		return p.Section(ctx, ref, sectionID)
	})
}

// Entry returns the cache entry for key, if any.
func (l *Loader) Entry(key provider.SectionKey) (provider.CacheEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

// Invalidate drops one cached section. textID must be the catalog id.
func (l *Loader) Invalidate(textID, sectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, provider.SectionKey{TextID: textID, SectionID: sectionID})
}

// Clear drops every cached section.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[provider.SectionKey]provider.CacheEntry)
}

// Len reports the number of cached sections.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
