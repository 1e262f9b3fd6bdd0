package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/provider"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lectern-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"texts":[
			{"id":"NIV","abbreviation":"NIV","name":"New International Version","language_code":"en"},
			{"abbreviation":"KJV","has_audio":true,"has_text":false,"ref":"111"}
		]}`))
	})
	mux.HandleFunc("/texts/NIV", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"NIV","divisions":["JN"],"division_names":["John"],"section_ids":["JN1","JN3"]}`))
	})
	mux.HandleFunc("/texts/NIV/sections/JN3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"JN3","title":"John 3","content":"For God so loved the world","format":"text"}`))
	})
	mux.HandleFunc("/texts/NIV/sections/BAD", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	mux.HandleFunc("/texts/NIV/sections/ERR", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T, base string) *Provider {
	t.Helper()
	p, err := New(base+"/", fetch.NewFetcher("lectern-test", time.Second))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New("  ", nil)
	assert.ErrorIs(t, err, provider.ErrConfiguration)

	p, err := New("https://texts.example.org/api/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://texts.example.org/api", p.BaseURL())
}

func TestProvider_Manifest(t *testing.T) {
	p := newTestProvider(t, newBackend(t).URL)

	entries, err := p.Manifest(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "NIV", entries[0].ID)
	assert.True(t, entries[0].HasText, "has_text defaults to true")
	assert.Equal(t, "New International Version", entries[0].Name)

	assert.Equal(t, "", entries[1].ID)
	assert.Equal(t, "KJV", entries[1].Abbreviation)
	assert.False(t, entries[1].HasText)
	assert.True(t, entries[1].HasAudio)
	assert.Equal(t, "111", entries[1].Ref)
}

func TestProvider_ManifestMissing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := newTestProvider(t, server.URL).Manifest(context.Background())
	assert.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestProvider_Info(t *testing.T) {
	p := newTestProvider(t, newBackend(t).URL)

	info, err := p.Info(context.Background(), "NIV")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, []string{"JN1", "JN3"}, info.SectionIDs)
	assert.Equal(t, []string{"John"}, info.DivisionNames)

	info, err = p.Info(context.Background(), "ESV")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestProvider_Section(t *testing.T) {
	p := newTestProvider(t, newBackend(t).URL)
	ctx := context.Background()

	s, err := p.Section(ctx, "NIV", "JN3")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "NIV", s.TextID)
	assert.Equal(t, "John 3", s.Title)
	assert.Equal(t, "For God so loved the world", s.Content)

	s, err = p.Section(ctx, "NIV", "JN21")
	require.NoError(t, err)
	assert.Nil(t, s, "404 is a miss")

	_, err = p.Section(ctx, "NIV", "BAD")
	assert.Error(t, err)

	_, err = p.Section(ctx, "NIV", "ERR")
	var se *fetch.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestProvider_EscapesPathSegments(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.EscapedPath()
		w.Write([]byte(`{"id":"1 JN 1"}`))
	}))
	defer server.Close()

	s, err := newTestProvider(t, server.URL).Section(context.Background(), "a/b", "1 JN 1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "/texts/a%2Fb/sections/1%20JN%201", got)
}
