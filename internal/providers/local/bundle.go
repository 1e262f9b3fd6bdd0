package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/storage"
)

// bundlePattern matches bundle files at any depth below an import directory.
const bundlePattern = "**/*.{toml,yaml,yml}"

// Bundle is the layout of an importable text. In TOML:
//
//	id = "KJV"
//	name = "King James Version"
//	language_code = "en"
//
//	[[sections]]
//	id = "GEN1"
//	title = "Genesis 1"
//	content = "In the beginning..."
//
// YAML bundles use the same keys.
type Bundle struct {
	ID            string          `toml:"id" yaml:"id"`
	Abbreviation  string          `toml:"abbreviation" yaml:"abbreviation"`
	Name          string          `toml:"name" yaml:"name"`
	LocalName     string          `toml:"local_name" yaml:"local_name"`
	ShortName     string          `toml:"short_name" yaml:"short_name"`
	LanguageCode  string          `toml:"language_code" yaml:"language_code"`
	LanguageName  string          `toml:"language_name" yaml:"language_name"`
	Divisions     []string        `toml:"divisions" yaml:"divisions"`
	DivisionNames []string        `toml:"division_names" yaml:"division_names"`
	Sections      []BundleSection `toml:"sections" yaml:"sections"`
}

type BundleSection struct {
	ID       string `toml:"id" yaml:"id"`
	Title    string `toml:"title" yaml:"title"`
	Format   string `toml:"format" yaml:"format"`
	Content  string `toml:"content" yaml:"content"`
	AudioURL string `toml:"audio_url" yaml:"audio_url"`
}

// ParseBundle decodes and checks a TOML bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	return parseBundle(data, toml.Unmarshal)
}

// ParseYAMLBundle decodes and checks a YAML bundle.
func ParseYAMLBundle(data []byte) (*Bundle, error) {
	return parseBundle(data, yaml.Unmarshal)
}

// parseBundleFile picks the decoder from the file extension.
func parseBundleFile(path string, data []byte) (*Bundle, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAMLBundle(data)
	default:
		return ParseBundle(data)
	}
}

func parseBundle(data []byte, unmarshal func([]byte, any) error) (*Bundle, error) {
	var b Bundle
	if err := unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}

	b.ID = strings.TrimSpace(b.ID)
	b.Abbreviation = strings.TrimSpace(b.Abbreviation)
	if b.ID == "" {
		b.ID = b.Abbreviation
	}
	if b.ID == "" {
		return nil, fmt.Errorf("%w: bundle has neither id nor abbreviation", provider.ErrMalformedEntry)
	}
	if len(b.Sections) == 0 {
		return nil, fmt.Errorf("%w: bundle %s has no sections", provider.ErrMalformedEntry, b.ID)
	}

	seen := make(map[string]bool, len(b.Sections))
	for i := range b.Sections {
		s := &b.Sections[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("%w: bundle %s section %d has no id", provider.ErrMalformedEntry, b.ID, i+1)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: bundle %s repeats section %s", provider.ErrMalformedEntry, b.ID, s.ID)
		}
		seen[s.ID] = true
		switch s.Format {
		case "":
			s.Format = provider.FormatText
		case provider.FormatText, provider.FormatMarkdown, provider.FormatHTML:
		default:
			return nil, fmt.Errorf("%w: bundle %s section %s has unknown format %q",
				provider.ErrMalformedEntry, b.ID, s.ID, s.Format)
		}
	}
	return &b, nil
}

// Import stores a parsed bundle, replacing any earlier import of the same
// text, and drops its search index.
func (p *Provider) Import(b *Bundle) error {
	text := &storage.Text{
		ID:            b.ID,
		Abbreviation:  b.Abbreviation,
		Name:          b.Name,
		LocalName:     b.LocalName,
		ShortName:     b.ShortName,
		LanguageCode:  b.LanguageCode,
		LanguageName:  b.LanguageName,
		Divisions:     b.Divisions,
		DivisionNames: b.DivisionNames,
	}
	sections := make([]*storage.Section, len(b.Sections))
	for i, s := range b.Sections {
		sections[i] = &storage.Section{
			SectionID: s.ID,
			Title:     s.Title,
			Content:   s.Content,
			Format:    s.Format,
			AudioURL:  s.AudioURL,
		}
		if s.AudioURL != "" {
			text.HasAudio = true
		}
	}

	if err := p.store.SaveText(text, sections); err != nil {
		return fmt.Errorf("storing bundle %s: %w", b.ID, err)
	}
	p.Forget(b.ID)
	debuglog.WithFields(map[string]any{"text": b.ID, "sections": len(sections)}).
		Infof("bundle imported")
	return nil
}

// ImportFile reads, parses and stores one bundle file.
func (p *Provider) ImportFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	b, err := parseBundleFile(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := p.Import(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ImportDir imports every TOML or YAML bundle below dir, subdirectories
// included, in path order. A bad bundle is logged and skipped; the ids of
// imported texts are returned.
func (p *Provider) ImportDir(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), bundlePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	sort.Strings(matches)

	var ids []string
	for _, match := range matches {
		path := filepath.Join(dir, filepath.FromSlash(match))
		b, err := p.ImportFile(path)
		if err != nil {
			debuglog.Warnf("skipping bundle %s: %v", path, err)
			continue
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}
