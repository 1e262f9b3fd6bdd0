// Package media classifies media URLs and feed enclosures and hands audio to
// an external player.
package media

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed media_types.toml
var mediaTypesTOML []byte

type Type int

const (
	TypeUnknown Type = iota
	TypeAudio
	TypeVideo
	TypeImage
	TypePDF
)

func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeImage:
		return "image"
	case TypePDF:
		return "pdf"
	default:
		return "unknown"
	}
}

type TypeConfig struct {
	Extensions  []string `toml:"extensions"`
	MIMETypes   []string `toml:"mime_types"`
	URLPatterns []string `toml:"url_patterns"`
}

type TypesConfig struct {
	Audio     TypeConfig                `toml:"audio"`
	Video     TypeConfig                `toml:"video"`
	Image     TypeConfig                `toml:"image"`
	PDF       TypeConfig                `toml:"pdf"`
	Platforms map[string]PlatformConfig `toml:"platforms"`
}

type PlatformConfig struct {
	DefaultOpener string `toml:"default_opener"`
}

type TypeDetector struct {
	config *TypesConfig
}

func NewTypeDetector() (*TypeDetector, error) {
	var config TypesConfig
	if err := toml.Unmarshal(mediaTypesTOML, &config); err != nil {
		return nil, fmt.Errorf("parsing media_types.toml: %w", err)
	}

	return &TypeDetector{config: &config}, nil
}

// ordered pairs each type with its detection rules, in precedence order
func (d *TypeDetector) ordered() []struct {
	t   Type
	cfg TypeConfig
} {
	return []struct {
		t   Type
		cfg TypeConfig
	}{
		{TypeAudio, d.config.Audio},
		{TypeVideo, d.config.Video},
		{TypeImage, d.config.Image},
		{TypePDF, d.config.PDF},
	}
}

// DetectType classifies a URL by file extension, then by known URL patterns.
func (d *TypeDetector) DetectType(url string) Type {
	lower := strings.ToLower(url)
	isURL := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")

	// Extract file extension, handling URLs with query params and anchors
	path := lower
	if i := strings.IndexAny(path, "?#"); i != -1 {
		path = path[:i]
	}
	var ext string
	if idx := strings.LastIndex(path, "."); idx != -1 && !strings.Contains(path[idx:], "/") {
		ext = path[idx+1:]
	}

	if ext != "" {
		for _, o := range d.ordered() {
			if hasExtension(o.cfg.Extensions, ext) {
				return o.t
			}
		}
	}

	if isURL {
		for _, o := range d.ordered() {
			if matchesPattern(lower, o.cfg.URLPatterns) {
				return o.t
			}
		}
	}

	return TypeUnknown
}

// DetectEnclosure classifies a feed enclosure by its declared MIME type,
// falling back to its URL.
func (d *TypeDetector) DetectEnclosure(url, mimeType string) Type {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType != "" {
		for _, o := range d.ordered() {
			for _, prefix := range o.cfg.MIMETypes {
				if strings.HasPrefix(mimeType, prefix) {
					return o.t
				}
			}
		}
	}
	return d.DetectType(url)
}

func (d *TypeDetector) GetDefaultOpener() string {
	platform := runtime.GOOS
	if platformConfig, ok := d.config.Platforms[platform]; ok {
		return platformConfig.DefaultOpener
	}
	// Fallback
	if fallback, ok := d.config.Platforms["fallback"]; ok {
		return fallback.DefaultOpener
	}
	return "open"
}

func hasExtension(extensions []string, ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func matchesPattern(url string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
