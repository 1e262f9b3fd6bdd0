package catalog

import (
	"slices"

	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/provider"
)

// merger folds provider manifests into one deduplicated, ordered catalog.
// It is not safe for concurrent use; the Catalog feeds it sequentially in
// registration order.
type merger struct {
	entries []*provider.TextEntry
	byID    map[string]*provider.TextEntry
	byAbbr  map[string]*provider.TextEntry
	dropped int
}

func newMerger() *merger {
	return &merger{
		byID:   make(map[string]*provider.TextEntry),
		byAbbr: make(map[string]*provider.TextEntry),
	}
}

// find resolves an incoming entry against what is already merged. An id is
// tried as an id and as an abbreviation, so a provider numbering texts by
// abbreviation still lands on the existing entry. The abbreviation is only
// consulted when the entry carries no id.
func (m *merger) find(e *provider.TextEntry) *provider.TextEntry {
	if id := provider.NormalizeKey(e.ID); id != "" {
		if existing, ok := m.byID[id]; ok {
			return existing
		}
		return m.byAbbr[id]
	}
	if abbr := provider.NormalizeKey(e.Abbreviation); abbr != "" {
		if existing, ok := m.byID[abbr]; ok {
			return existing
		}
		return m.byAbbr[abbr]
	}
	return nil
}

func (m *merger) add(source string, e provider.TextEntry) {
	if e.Key() == "" {
		m.dropped++
		debuglog.WithFields(map[string]any{"provider": source, "name": e.Name}).
			Warnf("%v: entry has neither id nor abbreviation", provider.ErrMalformedEntry)
		return
	}

	ref := e.Ref
	if ref == "" {
		ref = e.ID
	}
	if ref == "" {
		ref = e.Abbreviation
	}

	if existing := m.find(&e); existing != nil {
		m.merge(existing, source, ref, &e)
		return
	}

	entry := cloneEntry(&e)
	if entry.ID == "" {
		entry.ID = entry.Abbreviation
	}
	entry.Ref = ""
	entry.Provider = source
	entry.Refs = map[string]string{source: ref}
	entry.Sources = []string{source}

	m.entries = append(m.entries, entry)
	m.index(entry)
}

// merge annotates existing with incoming. Capability flags only gain truth;
// descriptive fields are filled only when still empty.
func (m *merger) merge(existing *provider.TextEntry, source, ref string, incoming *provider.TextEntry) {
	hadText := existing.HasText
	existing.HasText = existing.HasText || incoming.HasText
	existing.HasAudio = existing.HasAudio || incoming.HasAudio

	fillString(&existing.Abbreviation, incoming.Abbreviation)
	fillString(&existing.Name, incoming.Name)
	fillString(&existing.LocalName, incoming.LocalName)
	fillString(&existing.ShortName, incoming.ShortName)
	fillString(&existing.LanguageCode, incoming.LanguageCode)
	fillString(&existing.LanguageName, incoming.LanguageName)
	fillSlice(&existing.Divisions, incoming.Divisions)
	fillSlice(&existing.DivisionNames, incoming.DivisionNames)
	fillSlice(&existing.SectionIDs, incoming.SectionIDs)

	if _, ok := existing.Refs[source]; !ok {
		existing.Refs[source] = ref
	}
	if !slices.Contains(existing.Sources, source) {
		existing.Sources = append(existing.Sources, source)
	}
	if !hadText && incoming.HasText {
		existing.Provider = source
	}

	m.index(existing)
}

func (m *merger) index(e *provider.TextEntry) {
	if id := provider.NormalizeKey(e.ID); id != "" {
		if _, ok := m.byID[id]; !ok {
			m.byID[id] = e
		}
	}
	if abbr := provider.NormalizeKey(e.Abbreviation); abbr != "" {
		if _, ok := m.byAbbr[abbr]; !ok {
			m.byAbbr[abbr] = e
		}
	}
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func fillSlice(dst *[]string, src []string) {
	if len(*dst) == 0 && len(src) > 0 {
		*dst = slices.Clone(src)
	}
}

func cloneEntry(e *provider.TextEntry) *provider.TextEntry {
	c := *e
	c.Divisions = slices.Clone(e.Divisions)
	c.DivisionNames = slices.Clone(e.DivisionNames)
	c.SectionIDs = slices.Clone(e.SectionIDs)
	c.Sources = slices.Clone(e.Sources)
	if e.Refs != nil {
		c.Refs = make(map[string]string, len(e.Refs))
		for k, v := range e.Refs {
			c.Refs[k] = v
		}
	}
	return &c
}
