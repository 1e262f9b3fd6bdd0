package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lectern/internal/fetch"
	"github.com/pders01/lectern/internal/provider"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Scripture Audio</title>
  <item>
    <title>JN1</title>
    <category>KJV</category>
    <enclosure url="https://cdn.lectern.test/kjv/jn1.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>JN3</title>
    <category>KJV</category>
    <enclosure url="https://cdn.lectern.test/kjv/jn3-cover.jpg" type="image/jpeg" length="1"/>
    <enclosure url="https://cdn.lectern.test/kjv/jn3" type="audio/mp4" length="1"/>
  </item>
  <item>
    <title>JN1</title>
    <category>KJV</category>
    <enclosure url="https://cdn.lectern.test/kjv/jn1-duplicate.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>GEN1</title>
    <category>DRA</category>
    <enclosure url="https://cdn.lectern.test/dra/gen1.ogg" length="1"/>
  </item>
  <item>
    <title>Uncategorised</title>
    <enclosure url="https://cdn.lectern.test/x.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>JN4</title>
    <category>KJV</category>
    <enclosure url="https://cdn.lectern.test/kjv/jn4.mp4" type="video/mp4" length="1"/>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(feedXML))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(url, fetch.NewFetcher("", time.Second))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresFeedURL(t *testing.T) {
	_, err := New(" ", nil)
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestProvider_Manifest(t *testing.T) {
	var requests atomic.Int64
	p := newTestProvider(t, newFeedServer(t, &requests).URL)

	entries, err := p.Manifest(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, provider.TextEntry{Abbreviation: "KJV", HasAudio: true, Ref: "KJV"}, entries[0])
	assert.Equal(t, "DRA", entries[1].Abbreviation)
	assert.False(t, entries[1].HasText)
	assert.Empty(t, entries[1].ID)
}

func TestProvider_Info(t *testing.T) {
	var requests atomic.Int64
	p := newTestProvider(t, newFeedServer(t, &requests).URL)

	info, err := p.Info(context.Background(), "kjv")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, []string{"JN1", "JN3"}, info.SectionIDs)

	info, err = p.Info(context.Background(), "NIV")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestProvider_Section(t *testing.T) {
	var requests atomic.Int64
	p := newTestProvider(t, newFeedServer(t, &requests).URL)
	ctx := context.Background()

	s, err := p.Section(ctx, "KJV", "JN1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "https://cdn.lectern.test/kjv/jn1.mp3", s.AudioURL, "first item wins")
	assert.Empty(t, s.Content)

	s, err = p.Section(ctx, "KJV", "JN3")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "https://cdn.lectern.test/kjv/jn3", s.AudioURL, "audio enclosure chosen by type")

	s, err = p.Section(ctx, "DRA", "GEN1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "https://cdn.lectern.test/dra/gen1.ogg", s.AudioURL, "untyped enclosure detected by extension")

	s, err = p.Section(ctx, "KJV", "JN4")
	require.NoError(t, err)
	assert.Nil(t, s, "video-only item is not a recording")
}

func TestProvider_ConditionalRefetch(t *testing.T) {
	var requests atomic.Int64
	p := newTestProvider(t, newFeedServer(t, &requests).URL)
	ctx := context.Background()

	_, err := p.Manifest(ctx)
	require.NoError(t, err)
	entries, err := p.Manifest(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "unchanged feed reuses the parsed catalog")
	assert.Equal(t, int64(2), requests.Load())
}

func TestProvider_FeedErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.Write([]byte("this is not a feed"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestProvider(t, server.URL+"/down").Manifest(context.Background())
	var se *fetch.StatusError
	assert.ErrorAs(t, err, &se)

	_, err = newTestProvider(t, server.URL+"/broken").Manifest(context.Background())
	assert.Error(t, err)
}
