// Package commentary scrapes commentaries from an HTML site. The index page
// links each commentary as a.commentary[data-id], a commentary page links its
// sections as a.section[data-id], and a section page carries its text in an
// article element.
package commentary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/provider"
)

const accept = "text/html, application/xhtml+xml"

// Provider is a commentary site.
type Provider struct {
	base    *url.URL
	fetcher *fetch.Fetcher

	mu       sync.Mutex
	sections map[string]map[string]string // ref → section id → page URL
}

// New creates a provider for the site whose index page is at indexURL.
func New(indexURL string, fetcher *fetch.Fetcher) (*Provider, error) {
	base, err := url.Parse(strings.TrimSpace(indexURL))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: commentary provider needs an absolute index URL", provider.ErrConfiguration)
	}
	if fetcher == nil {
		fetcher = fetch.NewFetcher("", 0)
	}
	return &Provider{
		base:     base,
		fetcher:  fetcher,
		sections: make(map[string]map[string]string),
	}, nil
}

func (p *Provider) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := p.fetcher.Get(ctx, pageURL, accept)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// resolve makes href absolute against the index URL
func (p *Provider) resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return p.base.ResolveReference(ref).String(), nil
}

func (p *Provider) Manifest(ctx context.Context) ([]provider.TextEntry, error) {
	doc, err := p.fetchPage(ctx, p.base.String())
	if err != nil {
		return nil, err
	}

	var entries []provider.TextEntry
	doc.Find("a.commentary[data-id]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		pageURL, err := p.resolve(href)
		if err != nil {
			return
		}
		id, _ := a.Attr("data-id")
		abbr, _ := a.Attr("data-abbr")
		lang, _ := a.Attr("data-lang")
		entries = append(entries, provider.TextEntry{
			ID:           strings.TrimSpace(id),
			Abbreviation: strings.TrimSpace(abbr),
			Name:         strings.TrimSpace(a.Text()),
			LanguageCode: strings.TrimSpace(lang),
			HasText:      true,
			Ref:          pageURL,
		})
	})
	return entries, nil
}

// Info reads the section list from the commentary page at ref.
func (p *Provider) Info(ctx context.Context, ref string) (*provider.TextInfo, error) {
	links, order, err := p.sectionLinks(ctx, ref)
	if err != nil || links == nil {
		return nil, err
	}
	return &provider.TextInfo{SectionIDs: order}, nil
}

func (p *Provider) sectionLinks(ctx context.Context, ref string) (map[string]string, []string, error) {
	doc, err := p.fetchPage(ctx, ref)
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	links := make(map[string]string)
	var order []string
	doc.Find("a.section[data-id]").Each(func(_ int, a *goquery.Selection) {
		id, _ := a.Attr("data-id")
		id = strings.TrimSpace(id)
		href, ok := a.Attr("href")
		if id == "" || !ok {
			return
		}
		if _, dup := links[id]; dup {
			return
		}
		pageURL, err := p.resolve(href)
		if err != nil {
			return
		}
		links[id] = pageURL
		order = append(order, id)
	})

	p.mu.Lock()
	p.sections[ref] = links
	p.mu.Unlock()
	return links, order, nil
}

func (p *Provider) Section(ctx context.Context, ref, sectionID string) (*provider.Section, error) {
	p.mu.Lock()
	links, ok := p.sections[ref]
	p.mu.Unlock()
	if !ok {
		var err error
		if links, _, err = p.sectionLinks(ctx, ref); err != nil {
			return nil, err
		}
	}
	pageURL, ok := links[sectionID]
	if !ok {
		return nil, nil
	}

	doc, err := p.fetchPage(ctx, pageURL)
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	article := doc.Find("article").First()
	if article.Length() == 0 {
		return nil, fmt.Errorf("%w: %s has no article", provider.ErrSectionNotFound, pageURL)
	}

	return &provider.Section{
		TextID:    ref,
		SectionID: sectionID,
		Title:     extractTitle(doc, article),
		Content:   extractText(article),
		Format:    provider.FormatText,
	}, nil
}

func extractTitle(doc *goquery.Document, article *goquery.Selection) string {
	if h := strings.TrimSpace(article.Find("h1, h2").First().Text()); h != "" {
		return h
	}
	return strings.TrimSpace(doc.Find("title").Text())
}

// extractText joins the article's paragraphs with blank lines.
func extractText(article *goquery.Selection) string {
	var paragraphs []string
	article.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.Join(strings.Fields(article.Text()), " ")
	}
	return strings.Join(paragraphs, "\n\n")
}
