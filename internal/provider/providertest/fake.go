// Package providertest provides an in-memory provider for tests.
package providertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pders01/lectern/internal/provider"
)

// Fake is a scriptable provider. Sections maps ref → section id → content.
type Fake struct {
	Entries     []provider.TextEntry
	ManifestErr error
	Infos       map[string]*provider.TextInfo
	InfoErr     error
	Sections    map[string]map[string]string
	SectionErr  error
	// Format is the format of every section; empty means text.
	Format string

	// Delay is applied before every call returns.
	Delay time.Duration
	// Gate, when set, blocks section retrieval until it is closed.
	Gate chan struct{}
	// Hang, when set, blocks every call until it is closed, ignoring ctx.
	Hang chan struct{}

	mu           sync.Mutex
	sectionCalls map[string]int

	ManifestCalls atomic.Int64
	InfoCalls     atomic.Int64
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Hang != nil {
		<-f.Hang
	}
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) Manifest(ctx context.Context) ([]provider.TextEntry, error) {
	f.ManifestCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.ManifestErr != nil {
		return nil, f.ManifestErr
	}
	return append([]provider.TextEntry(nil), f.Entries...), nil
}

func (f *Fake) Info(ctx context.Context, ref string) (*provider.TextInfo, error) {
	f.InfoCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.InfoErr != nil {
		return nil, f.InfoErr
	}
	info, ok := f.Infos[ref]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (f *Fake) Section(ctx context.Context, ref, sectionID string) (*provider.Section, error) {
	f.mu.Lock()
	if f.sectionCalls == nil {
		f.sectionCalls = make(map[string]int)
	}
	f.sectionCalls[ref+"/"+sectionID]++
	f.mu.Unlock()

	if f.Gate != nil {
		<-f.Gate
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.SectionErr != nil {
		return nil, f.SectionErr
	}
	content, ok := f.Sections[ref][sectionID]
	if !ok {
		return nil, nil
	}
	format := f.Format
	if format == "" {
		format = provider.FormatText
	}
	return &provider.Section{
		TextID:    ref,
		SectionID: sectionID,
		Content:   content,
		Format:    format,
	}, nil
}

// SectionCalls reports how often ref/sectionID was retrieved
func (f *Fake) SectionCalls(ref, sectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sectionCalls[ref+"/"+sectionID]
}

// TotalSectionCalls reports the number of section retrievals of any key
func (f *Fake) TotalSectionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sectionCalls {
		n += c
	}
	return n
}

// SearchingFake adds a scripted native search to Fake.
type SearchingFake struct {
	*Fake
	Hits      map[string][]provider.Hit
	SearchErr error

	SearchCalls atomic.Int64
}

func (f *SearchingFake) Search(ctx context.Context, ref string, _ []string, limit int) ([]provider.Hit, error) {
	f.SearchCalls.Add(1)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	hits := f.Hits[ref]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]provider.Hit(nil), hits...), nil
}
