// Package library owns one reading session: the provider registry, the
// merged catalog, the section cache and the search indexes.
package library

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pders01/lectern/internal/catalog"
	"github.com/pders01/lectern/internal/config"
	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/providers/local"
	"github.com/pders01/lectern/internal/search"
	"github.com/pders01/lectern/internal/section"
)

// Library is the consumer-facing entry point. Create one per session with
// New or Build and release it with Close.
type Library struct {
	cfg      *config.Config
	registry *provider.Registry
	catalog  *catalog.Catalog
	loader   *section.Loader
	search   *search.Coordinator

	closeOnce sync.Once
	closeErr  error
}

// New creates a library over an already populated registry.
func New(cfg *config.Config, registry *provider.Registry) *Library {
	if cfg == nil {
		cfg = config.Default()
	}
	cat := catalog.New(registry, catalog.Options{
		Timeout:       cfg.Providers.ManifestTimeout,
		InfoCacheSize: cfg.Cache.InfoCacheSize,
	})
	loader := section.NewLoader(registry, cat, cfg.Cache.SectionTimeout)

	return &Library{
		cfg:      cfg,
		registry: registry,
		catalog:  cat,
		loader:   loader,
		search:   search.NewCoordinator(registry, cat, loader),
	}
}

// Registry returns the provider registry.
func (l *Library) Registry() *provider.Registry {
	return l.registry
}

// Providers describes the registered providers in registration order.
func (l *Library) Providers() []provider.Descriptor {
	return l.registry.Descriptors()
}

// Local returns the bundled-text provider, if one is registered.
func (l *Library) Local() (*local.Provider, bool) {
	p, ok := l.registry.Get(local.Name)
	if !ok {
		return nil, false
	}
	lp, ok := p.(*local.Provider)
	return lp, ok
}

// Catalog returns the merged catalog, aggregating it on first use.
func (l *Library) Catalog(ctx context.Context) ([]provider.TextEntry, error) {
	return l.catalog.Entries(ctx)
}

// Lookup resolves a text by id or abbreviation in the merged catalog.
func (l *Library) Lookup(ctx context.Context, textID string) (provider.TextEntry, error) {
	id, err := l.catalog.CanonicalID(ctx, textID)
	if err != nil {
		return provider.TextEntry{}, err
	}
	entry, _ := l.catalog.Lookup(id)
	return entry, nil
}

// LoadManifests loads detailed info for the given texts. Unknown texts and
// failed lookups are absent from the result.
func (l *Library) LoadManifests(ctx context.Context, textIDs ...string) (map[string]*provider.TextInfo, error) {
	return l.catalog.Info(ctx, textIDs...)
}

// LoadSection returns a section, or nil when no provider can serve it. When
// the owning provider has no recording, the other sources of the text are
// asked for one.
func (l *Library) LoadSection(ctx context.Context, textID, sectionID string) *provider.Section {
	s := l.loader.Load(ctx, textID, sectionID)
	if s == nil || s.AudioURL != "" {
		return s
	}
	audioURL := l.AudioURL(ctx, textID, sectionID)
	if audioURL == "" {
		return s
	}
	// cached sections are shared
	enriched := *s
	enriched.AudioURL = audioURL
	return &enriched
}

// AudioURL looks for a recording of the section among the providers that
// contributed to the text but do not own it. It returns "" when there is none.
func (l *Library) AudioURL(ctx context.Context, textID, sectionID string) string {
	entry, err := l.Lookup(ctx, textID)
	if err != nil || !entry.HasAudio {
		return ""
	}

	for _, name := range entry.Sources {
		if name == entry.Provider {
			continue
		}
		p, ok := l.registry.Get(name)
		if !ok {
			continue
		}
		s, err := l.sectionFrom(ctx, p, entry.ProviderRef(name), sectionID)
		if err != nil {
			debuglog.WithFields(map[string]any{"text": entry.ID, "section": sectionID, "provider": name}).
				Debugf("audio lookup failed: %v", err)
			continue
		}
		if s != nil && s.AudioURL != "" {
			return s.AudioURL
		}
	}
	return ""
}

func (l *Library) sectionFrom(ctx context.Context, p provider.Provider, ref, sectionID string) (*provider.Section, error) {
	timeout := l.cfg.Cache.SectionTimeout
	if timeout <= 0 {
		timeout = section.DefaultTimeout
	}
	return provider.Call(ctx, timeout, func(ctx context.Context) (*provider.Section, error) {
		return p.Section(ctx, ref, sectionID)
	})
}

// Search runs a query across textIDs. With no ids every text with content is
// searched. A zero ContextTokens takes the configured default.
func (l *Library) Search(ctx context.Context, query string, textIDs []string, opts search.Options) (*search.Results, error) {
	if opts.ContextTokens == 0 {
		opts.ContextTokens = l.cfg.Search.ContextTokens
	}
	if len(textIDs) == 0 {
		entries, err := l.catalog.Entries(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.HasText {
				textIDs = append(textIDs, e.ID)
			}
		}
	}
	return l.search.Search(ctx, query, textIDs, opts)
}

// SearchOptions returns the configured search defaults.
func (l *Library) SearchOptions() search.Options {
	return search.Options{
		Limit:         l.cfg.Search.DefaultLimit,
		Ranked:        l.cfg.Search.Ranked,
		ContextTokens: l.cfg.Search.ContextTokens,
	}
}

// Refresh re-aggregates the catalog and drops cached sections and indexes.
func (l *Library) Refresh(ctx context.Context) error {
	l.loader.Clear()
	l.search.Reset()
	return l.catalog.Refresh(ctx)
}

// Close drops every cache and closes the providers that hold resources.
// It is safe to call more than once.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		l.loader.Clear()
		l.search.Reset()

		var errs []error
		for _, p := range l.registry.List() {
			if c, ok := p.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}
