package section

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
)

func setup(t *testing.T, fake *providertest.Fake) *Loader {
	t.Helper()
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("fake", fake))
	cat := catalog.New(registry, catalog.Options{Timeout: time.Second})
	return NewLoader(registry, cat, time.Second)
}

func kjvFake() *providertest.Fake {
	return &providertest.Fake{
		Entries: []provider.TextEntry{{ID: "KJV", HasText: true}},
		Sections: map[string]map[string]string{
			"KJV": {"JN3": "For God so loved the world"},
		},
	}
}

func TestLoad_Hit(t *testing.T) {
	fake := kjvFake()
	loader := setup(t, fake)
	ctx := context.Background()

	first := loader.Load(ctx, "KJV", "JN3")
	require.NotNil(t, first)
	assert.Equal(t, "For God so loved the world", first.Content)
	assert.Equal(t, provider.FormatText, first.Format)

	second := loader.Load(ctx, "kjv", "JN3")
	require.NotNil(t, second)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fake.SectionCalls("KJV", "JN3"))

	entry, ok := loader.Entry(provider.SectionKey{TextID: "KJV", SectionID: "JN3"})
	require.True(t, ok)
	assert.Equal(t, "fake", entry.Provider)
	assert.False(t, entry.FetchedAt.IsZero())
}

func TestLoad_ConcurrentRequestsShareOneRetrieval(t *testing.T) {
	fake := kjvFake()
	fake.Gate = make(chan struct{})
	loader := setup(t, fake)
	ctx := context.Background()

	const callers = 10
	results := make([]*provider.Section, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = loader.Load(ctx, "KJV", "JN3")
		}()
	}

	require.Eventually(t, func() bool {
		return fake.SectionCalls("KJV", "JN3") == 1
	}, time.Second, 5*time.Millisecond)
	// let the remaining callers attach before releasing the retrieval
	time.Sleep(20 * time.Millisecond)
	close(fake.Gate)
	wg.Wait()

	assert.Equal(t, 1, fake.SectionCalls("KJV", "JN3"))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "For God so loved the world", r.Content)
		assert.Same(t, results[0], r)
	}
}

func TestLoad_FailureIsNilAndNotCached(t *testing.T) {
	fake := kjvFake()
	fake.SectionErr = errors.New("503")
	loader := setup(t, fake)
	ctx := context.Background()

	assert.Nil(t, loader.Load(ctx, "KJV", "JN3"))
	assert.Equal(t, 0, loader.Len())

	fake.SectionErr = nil
	s := loader.Load(ctx, "KJV", "JN3")
	require.NotNil(t, s)
	assert.Equal(t, 2, fake.SectionCalls("KJV", "JN3"), "failure is retried on next request")
}

func TestLoad_MissIsNil(t *testing.T) {
	loader := setup(t, kjvFake())

	assert.Nil(t, loader.Load(context.Background(), "KJV", "GEN1"))
	assert.Nil(t, loader.Load(context.Background(), "UNKNOWN", "GEN1"))
	assert.Equal(t, 0, loader.Len())
}

func TestLoad_CancelledCallerStillPopulatesCache(t *testing.T) {
	fake := kjvFake()
	fake.Gate = make(chan struct{})
	loader := setup(t, fake)

	// make sure the catalog is ready so cancellation hits the section wait
	_, err := loader.owners.CanonicalID(context.Background(), "KJV")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *provider.Section)
	go func() { done <- loader.Load(ctx, "KJV", "JN3") }()

	require.Eventually(t, func() bool {
		return fake.SectionCalls("KJV", "JN3") == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.Nil(t, <-done)

	close(fake.Gate)
	require.Eventually(t, func() bool {
		return loader.Len() == 1
	}, time.Second, 5*time.Millisecond)

	s := loader.Load(context.Background(), "KJV", "JN3")
	require.NotNil(t, s)
	assert.Equal(t, 1, fake.SectionCalls("KJV", "JN3"))
}

func TestLoadMany(t *testing.T) {
	fake := kjvFake()
	fake.Sections["KJV"]["JN1"] = "In the beginning was the Word"
	loader := setup(t, fake)

	got := loader.LoadMany(context.Background(), "KJV", []string{"JN1", "missing", "JN3"})
	require.Len(t, got, 3)
	require.NotNil(t, got[0])
	assert.Equal(t, "JN1", got[0].SectionID)
	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
	assert.Equal(t, "JN3", got[2].SectionID)
}

func TestInvalidateAndClear(t *testing.T) {
	fake := kjvFake()
	fake.Sections["KJV"]["JN1"] = "In the beginning"
	loader := setup(t, fake)
	ctx := context.Background()

	require.NotNil(t, loader.Load(ctx, "KJV", "JN1"))
	require.NotNil(t, loader.Load(ctx, "KJV", "JN3"))
	assert.Equal(t, 2, loader.Len())

	loader.Invalidate("KJV", "JN1")
	assert.Equal(t, 1, loader.Len())
	require.NotNil(t, loader.Load(ctx, "KJV", "JN1"))
	assert.Equal(t, 2, fake.SectionCalls("KJV", "JN1"))

	loader.Clear()
	assert.Equal(t, 0, loader.Len())
}

func TestLoad_ProviderIgnoringContextIsAbandoned(t *testing.T) {
	fake := kjvFake()
	fake.Gate = make(chan struct{})
	t.Cleanup(func() { close(fake.Gate) })

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("fake", fake))
	cat := catalog.New(registry, catalog.Options{Timeout: time.Second})
	loader := NewLoader(registry, cat, 50*time.Millisecond)

	start := time.Now()
	assert.Nil(t, loader.Load(context.Background(), "KJV", "JN3"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, loader.Len())
}

func TestLoad_PanickingProvider(t *testing.T) {
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("boom", &panicky{}))
	cat := catalog.New(registry, catalog.Options{})
	loader := NewLoader(registry, cat, 0)

	assert.NotPanics(t, func() {
		assert.Nil(t, loader.Load(context.Background(), "X", "1"))
	})
}

type panicky struct{}

func (panicky) Manifest(context.Context) ([]provider.TextEntry, error) {
	return []provider.TextEntry{{ID: "X", HasText: true}}, nil
}

func (panicky) Info(context.Context, string) (*provider.TextInfo, error) { return nil, nil }

func (panicky) Section(context.Context, string, string) (*provider.Section, error) {
	panic("provider bug")
}
