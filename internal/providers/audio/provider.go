// Package audio serves an audio-only index read from a podcast feed. Each
// item's first category names the text, its title the section and its audio
// enclosure the recording.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/media"
	"github.com/pders01/lectern/internal/provider"
)

const accept = "application/rss+xml, application/atom+xml, application/xml, text/xml"

type recording struct {
	sectionID string
	title     string
	url       string
}

// catalog is the parsed feed: texts in first-appearance order.
type catalog struct {
	title  string
	order  []string
	texts  map[string][]recording
	byText map[string]map[string]int
}

// Provider implements provider.Provider over a feed.
type Provider struct {
	feedURL  string
	fetcher  *fetch.Fetcher
	parser   *gofeed.Parser
	detector *media.TypeDetector

	mu      sync.Mutex
	current *catalog
}

func New(feedURL string, fetcher *fetch.Fetcher) (*Provider, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("%w: audio provider needs a feed URL", provider.ErrConfiguration)
	}
	detector, err := media.NewTypeDetector()
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		fetcher = fetch.NewFetcher("", 0)
	}
	return &Provider{
		feedURL:  feedURL,
		fetcher:  fetcher,
		parser:   gofeed.NewParser(),
		detector: detector,
	}, nil
}

// load returns the feed catalog, refetching the feed when it changed.
func (p *Provider) load(ctx context.Context) (*catalog, error) {
	body, updated, err := p.fetcher.GetIfModified(ctx, p.feedURL, accept)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !updated {
		if p.current != nil {
			return p.current, nil
		}
		// validators outlived the parsed feed; fetch unconditionally
		p.fetcher.Forget(p.feedURL)
		if body, err = p.fetcher.Get(ctx, p.feedURL, accept); err != nil {
			return nil, err
		}
	}

	c, err := p.parse(body)
	if err != nil {
		p.fetcher.Forget(p.feedURL)
		return nil, err
	}
	p.current = c
	return c, nil
}

func (p *Provider) parse(body []byte) (*catalog, error) {
	feed, err := p.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	c := &catalog{
		title:  feed.Title,
		texts:  make(map[string][]recording),
		byText: make(map[string]map[string]int),
	}
	log := debuglog.WithFields(map[string]any{"feed": p.feedURL})
	for _, item := range feed.Items {
		if len(item.Categories) == 0 || strings.TrimSpace(item.Categories[0]) == "" {
			log.Debugf("%v: item %q has no text category", provider.ErrMalformedEntry, item.Title)
			continue
		}
		abbr := strings.TrimSpace(item.Categories[0])
		sectionID := strings.TrimSpace(item.Title)
		if sectionID == "" {
			log.Debugf("%v: %s item has no title", provider.ErrMalformedEntry, abbr)
			continue
		}
		audioURL := p.audioEnclosure(item)
		if audioURL == "" {
			continue
		}

		key := provider.NormalizeKey(abbr)
		if _, ok := c.byText[key]; !ok {
			c.byText[key] = make(map[string]int)
			c.order = append(c.order, abbr)
		}
		if _, dup := c.byText[key][sectionID]; dup {
			continue
		}
		c.byText[key][sectionID] = len(c.texts[key])
		c.texts[key] = append(c.texts[key], recording{sectionID: sectionID, title: item.Title, url: audioURL})
	}
	return c, nil
}

func (p *Provider) audioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc.URL != "" && p.detector.DetectEnclosure(enc.URL, enc.Type) == media.TypeAudio {
			return enc.URL
		}
	}
	return ""
}

// Manifest lists one audio-only entry per text, keyed by abbreviation.
func (p *Provider) Manifest(ctx context.Context) ([]provider.TextEntry, error) {
	c, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]provider.TextEntry, 0, len(c.order))
	for _, abbr := range c.order {
		entries = append(entries, provider.TextEntry{
			Abbreviation: abbr,
			HasAudio:     true,
			Ref:          abbr,
		})
	}
	return entries, nil
}

func (p *Provider) Info(ctx context.Context, ref string) (*provider.TextInfo, error) {
	c, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	recs, ok := c.texts[provider.NormalizeKey(ref)]
	if !ok {
		return nil, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.sectionID
	}
	return &provider.TextInfo{TextID: ref, SectionIDs: ids}, nil
}

// Section returns a content-less section carrying the recording's URL.
func (p *Provider) Section(ctx context.Context, ref, sectionID string) (*provider.Section, error) {
	c, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	key := provider.NormalizeKey(ref)
	i, ok := c.byText[key][sectionID]
	if !ok {
		return nil, nil
	}
	rec := c.texts[key][i]
	return &provider.Section{
		TextID:    ref,
		SectionID: rec.sectionID,
		Title:     rec.title,
		Format:    provider.FormatText,
		AudioURL:  rec.url,
	}, nil
}
