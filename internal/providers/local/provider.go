// Package local serves texts bundled into the local bbolt database.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/storage"
)

// Name is the registry name of the local provider.
const Name = "local"

// Provider implements provider.Provider and provider.Searcher over a store.
type Provider struct {
	store *storage.Store

	mu      sync.Mutex
	indexes map[string]*textIndex
	closed  bool
}

// New wraps an open store. The provider owns the store and closes it.
func New(store *storage.Store) *Provider {
	return &Provider{
		store:   store,
		indexes: make(map[string]*textIndex),
	}
}

// Open opens the database at dbPath and returns a provider over it.
func Open(dbPath string, timeout time.Duration) (*Provider, error) {
	store, err := storage.NewStore(dbPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: local store: %w", provider.ErrConfiguration, err)
	}
	return New(store), nil
}

// Store exposes the underlying store for bundle import.
func (p *Provider) Store() *storage.Store {
	return p.store
}

func (p *Provider) Manifest(ctx context.Context) ([]provider.TextEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	texts, err := p.store.GetAllTexts()
	if err != nil {
		return nil, fmt.Errorf("listing texts: %w", err)
	}

	entries := make([]provider.TextEntry, 0, len(texts))
	for _, t := range texts {
		entries = append(entries, provider.TextEntry{
			ID:            t.ID,
			Abbreviation:  t.Abbreviation,
			Name:          t.Name,
			LocalName:     t.LocalName,
			ShortName:     t.ShortName,
			LanguageCode:  t.LanguageCode,
			LanguageName:  t.LanguageName,
			HasText:       true,
			HasAudio:      t.HasAudio,
			Divisions:     t.Divisions,
			DivisionNames: t.DivisionNames,
			SectionIDs:    t.SectionIDs,
			Ref:           t.ID,
		})
	}
	return entries, nil
}

func (p *Provider) Info(ctx context.Context, ref string) (*provider.TextInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := p.store.GetText(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &provider.TextInfo{
		TextID:        t.ID,
		Divisions:     t.Divisions,
		DivisionNames: t.DivisionNames,
		SectionIDs:    t.SectionIDs,
	}, nil
}

func (p *Provider) Section(ctx context.Context, ref, sectionID string) (*provider.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := p.store.GetSection(ref, sectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &provider.Section{
		TextID:    s.TextID,
		SectionID: s.SectionID,
		Title:     s.Title,
		Content:   s.Content,
		Format:    s.Format,
		AudioURL:  s.AudioURL,
	}, nil
}

// Forget drops the search index of a text, so the next search rebuilds it
// from the store.
func (p *Provider) Forget(ref string) {
	key := provider.NormalizeKey(ref)
	p.mu.Lock()
	idx := p.indexes[key]
	delete(p.indexes, key)
	p.mu.Unlock()
	if idx != nil {
		_ = idx.Close()
	}
}

// Close releases the search indexes and the store.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	indexes := p.indexes
	p.indexes = make(map[string]*textIndex)
	p.mu.Unlock()

	for _, idx := range indexes {
		_ = idx.Close()
	}
	return p.store.Close()
}
