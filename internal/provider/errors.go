package provider

import (
	"errors"
	"strings"
)

var (
	// ErrConfiguration reports an invalid registration.
	ErrConfiguration = errors.New("provider configuration error")
	// ErrProviderUnavailable reports a provider call that failed or timed out.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedEntry reports a manifest entry without identity fields.
	ErrMalformedEntry = errors.New("malformed manifest entry")
	// ErrSectionNotFound reports a section no provider could deliver.
	ErrSectionNotFound = errors.New("section not found")
	// ErrIndexBuild reports a text whose search index could not be built.
	ErrIndexBuild = errors.New("index build failed")
	// ErrUnknownText reports a text id missing from the catalog.
	ErrUnknownText = errors.New("unknown text")
)

// NormalizeKey folds an identifier for identity comparison.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
