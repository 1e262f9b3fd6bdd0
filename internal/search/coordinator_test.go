package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lectern/internal/catalog"
	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/provider/providertest"
	"github.com/pders01/lectern/internal/section"
)

func newCoordinator(t *testing.T, providers ...any) *Coordinator {
	t.Helper()
	registry := provider.NewRegistry()
	for i := 0; i < len(providers); i += 2 {
		require.NoError(t, registry.Register(providers[i].(string), providers[i+1].(provider.Provider)))
	}
	cat := catalog.New(registry, catalog.Options{Timeout: time.Second})
	loader := section.NewLoader(registry, cat, time.Second)
	return NewCoordinator(registry, cat, loader)
}

func gospel() *providertest.Fake {
	return &providertest.Fake{
		Entries: []provider.TextEntry{{ID: "KJV", HasText: true}},
		Infos: map[string]*provider.TextInfo{
			"KJV": {SectionIDs: []string{"JN1", "JN3", "JN4"}},
		},
		Sections: map[string]map[string]string{
			"KJV": {
				"JN1": "In the beginning was the Word, and the Word was with God, and the Word was God.",
				"JN3": "For God so loved the world, that he gave his only begotten Son.",
				"JN4": "God is a Spirit: and they that worship him must worship him in spirit and in truth.",
			},
		},
	}
}

func sectionIDs(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.TextID + ":" + m.SectionID
	}
	return out
}

func TestSearch_ANDSemantics(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "God world", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"KJV:JN3"}, sectionIDs(res.Matches))
	assert.Equal(t, []string{"god", "world"}, res.Terms)
	assert.Empty(t, res.Skipped)
}

func TestSearch_CanonicalOrder(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "god", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"KJV:JN1", "KJV:JN3", "KJV:JN4"}, sectionIDs(res.Matches))
}

func TestSearch_Ranked(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "god", []string{"KJV"}, Options{Ranked: true})
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "JN1", res.Matches[0].SectionID)
	assert.Equal(t, 2.0, res.Matches[0].Score)
	// ties keep canonical order
	assert.Equal(t, []string{"KJV:JN1", "KJV:JN3", "KJV:JN4"}, sectionIDs(res.Matches))
}

func TestSearch_Limit(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "god", []string{"KJV"}, Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)
}

func TestSearch_AbsentTermYieldsNoMatches(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "god pharaoh", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Skipped)
}

func TestSearch_EmptyQueryAndNoTexts(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), " ... ", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	res, err = c.Search(context.Background(), "god", nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestSearch_Snippet(t *testing.T) {
	c := newCoordinator(t, "a", gospel())

	res, err := c.Search(context.Background(), "loved", []string{"KJV"}, Options{ContextTokens: 2})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "God so loved the world,", res.Matches[0].Snippet)
	assert.Equal(t, 3, res.Matches[0].Position)

	res, err = c.Search(context.Background(), "loved", []string{"KJV"}, Options{ContextTokens: -1})
	require.NoError(t, err)
	assert.Equal(t, "loved", res.Matches[0].Snippet)
}

func TestSearch_HTMLSectionsIndexWordsNotMarkup(t *testing.T) {
	fake := &providertest.Fake{
		Entries: []provider.TextEntry{{ID: "MHC", HasText: true}},
		Infos:   map[string]*provider.TextInfo{"MHC": {SectionIDs: []string{"MT5"}}},
		Sections: map[string]map[string]string{"MHC": {
			"MT5": `<div class="note"><p>Blessed are the <em>meek</em>.</p><p>They inherit</p></div>`,
		}},
		Format: provider.FormatHTML,
	}
	c := newCoordinator(t, "notes", fake)

	for _, markup := range []string{"div", "p", "em", "class", "note"} {
		res, err := c.Search(context.Background(), markup, []string{"MHC"}, Options{})
		require.NoError(t, err)
		assert.Empty(t, res.Matches, "markup %q must not match", markup)
	}

	res, err := c.Search(context.Background(), "meek", []string{"MHC"}, Options{ContextTokens: 2})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "are the meek. They inherit", res.Matches[0].Snippet)
}

func TestSearch_FailingTextIsSkippedOthersUnaffected(t *testing.T) {
	good := gospel()
	broken := &providertest.Fake{
		Entries:    []provider.TextEntry{{ID: "ASV", HasText: true}},
		Infos:      map[string]*provider.TextInfo{"ASV": {SectionIDs: []string{"JN1"}}},
		SectionErr: errors.New("backend down"),
	}
	c := newCoordinator(t, "good", good, "broken", broken)

	res, err := c.Search(context.Background(), "god", []string{"ASV", "KJV", "NOPE"}, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 3)

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "ASV", res.Skipped[0].TextID)
	assert.True(t, IsIndexBuildFailure(res.Skipped[0].Err))
	assert.Equal(t, "NOPE", res.Skipped[1].TextID)
	assert.ErrorIs(t, res.Skipped[1].Err, provider.ErrUnknownText)

	// failed builds are retried
	broken.SectionErr = nil
	broken.Sections = map[string]map[string]string{"ASV": {"JN1": "the Word was God"}}
	res, err = c.Search(context.Background(), "god", []string{"ASV"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ASV:JN1"}, sectionIDs(res.Matches))
}

func TestSearch_TextsInCallerOrder(t *testing.T) {
	a := gospel()
	b := &providertest.Fake{
		Entries:  []provider.TextEntry{{ID: "WEB", HasText: true}},
		Infos:    map[string]*provider.TextInfo{"WEB": {SectionIDs: []string{"JN3"}}},
		Sections: map[string]map[string]string{"WEB": {"JN3": "For God so loved the world"}},
	}
	c := newCoordinator(t, "a", a, "b", b)

	res, err := c.Search(context.Background(), "loved", []string{"web", "KJV", "WEB"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"WEB:JN3", "KJV:JN3"}, sectionIDs(res.Matches))
}

func TestSearch_AudioOnlyTextSkipped(t *testing.T) {
	audio := &providertest.Fake{Entries: []provider.TextEntry{{Abbreviation: "DRA", HasAudio: true}}}
	c := newCoordinator(t, "audio", audio)

	res, err := c.Search(context.Background(), "god", []string{"DRA"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.True(t, IsIndexBuildFailure(res.Skipped[0].Err))
}

func TestIndex_BuiltOnceAndMemoized(t *testing.T) {
	fake := gospel()
	c := newCoordinator(t, "a", fake)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Search(ctx, "god", []string{"KJV"}, Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.SectionCalls("KJV", "JN1"))
	assert.Equal(t, []string{"KJV"}, c.Indexed())

	idx, err := c.Index(ctx, "KJV")
	require.NoError(t, err)
	assert.Equal(t, []string{"JN1", "JN3", "JN4"}, idx.Sections)
	assert.Equal(t, []Posting{{Section: 1, Position: 1}}, idx.Postings("god")[2:3])

	c.Reset()
	assert.Empty(t, c.Indexed())
}

func TestSearch_CancelledCaller(t *testing.T) {
	fake := gospel()
	fake.Delay = 50 * time.Millisecond
	c := newCoordinator(t, "a", fake)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, "god", []string{"KJV"}, Options{})
	assert.Error(t, err)
}

func TestSearch_NativeSearchPreferred(t *testing.T) {
	native := &providertest.SearchingFake{
		Fake: gospel(),
		Hits: map[string][]provider.Hit{
			"KJV": {
				{SectionID: "JN4", Snippet: "God is a Spirit", Score: 0.9},
				{SectionID: "JN1", Snippet: "the Word was God", Score: 0.5},
			},
		},
	}
	c := newCoordinator(t, "native", native)

	res, err := c.Search(context.Background(), "god", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"KJV:JN1", "KJV:JN4"}, sectionIDs(res.Matches))
	assert.Equal(t, int64(1), native.SearchCalls.Load())
	assert.Empty(t, c.Indexed(), "generic index not built")

	res, err = c.Search(context.Background(), "god", []string{"KJV"}, Options{Ranked: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"KJV:JN4", "KJV:JN1"}, sectionIDs(res.Matches))
}

func TestSearch_NativeFailureFallsBackToIndex(t *testing.T) {
	native := &providertest.SearchingFake{Fake: gospel(), SearchErr: errors.New("index corrupt")}
	c := newCoordinator(t, "native", native)

	res, err := c.Search(context.Background(), "world", []string{"KJV"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"KJV:JN3"}, sectionIDs(res.Matches))
	assert.Equal(t, []string{"KJV"}, c.Indexed())
}
