package provider

import (
	"context"
	"time"
)

// Section formats a provider may return.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// TextEntry describes one text as a provider reports it, and later as the
// merged catalog holds it.
type TextEntry struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`

	// Display-name variants
	Name      string `json:"name"`
	LocalName string `json:"local_name"`
	ShortName string `json:"short_name"`

	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`

	HasText  bool `json:"has_text"`
	HasAudio bool `json:"has_audio"`

	Divisions     []string `json:"divisions,omitempty"`
	DivisionNames []string `json:"division_names,omitempty"`
	SectionIDs    []string `json:"section_ids,omitempty"`

	// Ref is the provider's own identifier for the text. Providers may leave it
	// empty, in which case ID (or Abbreviation) is used when calling back.
	Ref string `json:"ref,omitempty"`

	// Set by the catalog on merged entries.
	Provider string            `json:"provider,omitempty"`
	Refs     map[string]string `json:"refs,omitempty"`
	Sources  []string          `json:"sources,omitempty"`
}

// Key returns the identity key: the id, falling back to the abbreviation.
func (e *TextEntry) Key() string {
	if k := NormalizeKey(e.ID); k != "" {
		return k
	}
	return NormalizeKey(e.Abbreviation)
}

// ProviderRef returns the identifier to hand back to the named provider.
func (e *TextEntry) ProviderRef(name string) string {
	if ref, ok := e.Refs[name]; ok && ref != "" {
		return ref
	}
	if e.ID != "" {
		return e.ID
	}
	return e.Abbreviation
}

// TextInfo is the extended structural metadata returned by a detailed-info lookup.
type TextInfo struct {
	TextID        string   `json:"text_id"`
	Divisions     []string `json:"divisions,omitempty"`
	DivisionNames []string `json:"division_names,omitempty"`
	SectionIDs    []string `json:"section_ids"`
}

// Section is one retrievable content unit.
type Section struct {
	TextID    string `json:"text_id"`
	SectionID string `json:"section_id"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Format    string `json:"format,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
}

// SectionKey identifies a section across the catalog.
type SectionKey struct {
	TextID    string
	SectionID string
}

func (k SectionKey) String() string {
	return k.TextID + "/" + k.SectionID
}

// CacheEntry is a cached section together with where and when it came from.
type CacheEntry struct {
	Section   *Section
	FetchedAt time.Time
	Provider  string
}

// Hit is a match reported by a provider's own search.
type Hit struct {
	SectionID string
	Position  int
	Snippet   string
	Score     float64
}

// Provider is the retrieval contract every content source implements.
//
// All methods may block on I/O and must honour ctx. A nil result with a nil
// error means "absent": an empty manifest, an unknown text or a missing section.
type Provider interface {
	// Manifest returns the texts this provider offers.
	Manifest(ctx context.Context) ([]TextEntry, error)

	// Info returns structural metadata for one of the provider's texts.
	Info(ctx context.Context, ref string) (*TextInfo, error)

	// Section returns the raw content of one section.
	Section(ctx context.Context, ref, sectionID string) (*Section, error)
}

// Searcher can be implemented by providers with their own full-text search.
// It is used in preference to the generic token index.
type Searcher interface {
	Search(ctx context.Context, ref string, terms []string, limit int) ([]Hit, error)
}

// Capabilities lists what a registered provider supports.
type Capabilities struct {
	Manifest bool
	Info     bool
	Sections bool
	Search   bool
}

// Descriptor describes a registered provider.
type Descriptor struct {
	Name         string
	Order        int
	Capabilities Capabilities
}
