// Package remote serves texts from a JSON content backend:
//
//	GET {base}/manifest
//	GET {base}/texts/{ref}
//	GET {base}/texts/{ref}/sections/{section}
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/provider"
)

const accept = "application/json"

// ManifestResponse is the body of GET /manifest.
type ManifestResponse struct {
	Texts []TextDoc `json:"texts"`
}

// TextDoc describes one text. A missing has_text means true.
type TextDoc struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name"`
	LocalName    string `json:"local_name"`
	ShortName    string `json:"short_name"`
	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`
	HasText      *bool  `json:"has_text,omitempty"`
	HasAudio     bool   `json:"has_audio"`
	Ref          string `json:"ref,omitempty"`
}

// InfoResponse is the body of GET /texts/{ref}.
type InfoResponse struct {
	ID            string   `json:"id"`
	Divisions     []string `json:"divisions"`
	DivisionNames []string `json:"division_names"`
	SectionIDs    []string `json:"section_ids"`
}

// SectionResponse is the body of GET /texts/{ref}/sections/{section}.
type SectionResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Format   string `json:"format"`
	AudioURL string `json:"audio_url"`
}

// Provider is a content backend reached over HTTP.
type Provider struct {
	base    string
	fetcher *fetch.Fetcher
}

// New creates a provider for the backend at baseURL.
func New(baseURL string, fetcher *fetch.Fetcher) (*Provider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: remote provider needs a base URL", provider.ErrConfiguration)
	}
	if fetcher == nil {
		fetcher = fetch.NewFetcher("", 0)
	}
	return &Provider{base: baseURL, fetcher: fetcher}, nil
}

// BaseURL reports the backend address
func (p *Provider) BaseURL() string {
	return p.base
}

// get decodes the JSON document at path into v. found is false for 404.
func (p *Provider) get(ctx context.Context, path string, v any) (found bool, err error) {
	body, err := p.fetcher.Get(ctx, p.base+path, accept)
	if errors.Is(err, fetch.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return true, nil
}

func (p *Provider) Manifest(ctx context.Context) ([]provider.TextEntry, error) {
	var resp ManifestResponse
	found, err := p.get(ctx, "/manifest", &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("manifest: %w", fetch.ErrNotFound)
	}

	entries := make([]provider.TextEntry, 0, len(resp.Texts))
	for _, t := range resp.Texts {
		hasText := true
		if t.HasText != nil {
			hasText = *t.HasText
		}
		entries = append(entries, provider.TextEntry{
			ID:           t.ID,
			Abbreviation: t.Abbreviation,
			Name:         t.Name,
			LocalName:    t.LocalName,
			ShortName:    t.ShortName,
			LanguageCode: t.LanguageCode,
			LanguageName: t.LanguageName,
			HasText:      hasText,
			HasAudio:     t.HasAudio,
			Ref:          t.Ref,
		})
	}
	return entries, nil
}

func (p *Provider) Info(ctx context.Context, ref string) (*provider.TextInfo, error) {
	var resp InfoResponse
	found, err := p.get(ctx, "/texts/"+url.PathEscape(ref), &resp)
	if err != nil || !found {
		return nil, err
	}
	return &provider.TextInfo{
		TextID:        resp.ID,
		Divisions:     resp.Divisions,
		DivisionNames: resp.DivisionNames,
		SectionIDs:    resp.SectionIDs,
	}, nil
}

func (p *Provider) Section(ctx context.Context, ref, sectionID string) (*provider.Section, error) {
	var resp SectionResponse
	path := "/texts/" + url.PathEscape(ref) + "/sections/" + url.PathEscape(sectionID)
	found, err := p.get(ctx, path, &resp)
	if err != nil || !found {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = sectionID
	}
	return &provider.Section{
		TextID:    ref,
		SectionID: resp.ID,
		Title:     resp.Title,
		Content:   resp.Content,
		Format:    resp.Format,
		AudioURL:  resp.AudioURL,
	}, nil
}
