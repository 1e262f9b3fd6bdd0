// Package fetch performs the HTTP GETs of the network-backed providers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultUserAgent = "lectern/1.0 (text library; github.com/pders01/lectern)"
	DefaultTimeout   = 30 * time.Second

	// maxBodySize caps how much of a response body is read
	maxBodySize = 16 << 20
)

// ErrNotFound is returned for a 404 response.
var ErrNotFound = errors.New("not found")

// StatusError is an HTTP error status other than 404.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

// validator holds the cache validators of the last successful response for
// a URL.
type validator struct {
	etag         string
	lastModified string
	fetchedAt    time.Time
}

type Fetcher struct {
	client    *http.Client
	userAgent string

	mu         sync.Mutex
	validators map[string]validator
}

// NewFetcher creates a fetcher. Empty or zero arguments select the defaults.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent:  userAgent,
		validators: make(map[string]validator),
	}
}

// UserAgent reports the User-Agent header sent with every request
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches url and returns its body.
func (f *Fetcher) Get(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := f.do(ctx, url, accept, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readBody(resp)
}

// GetIfModified fetches url conditionally on the validators of the previous
// successful response. updated is false, with a nil body, when the server
// reports the resource unchanged.
func (f *Fetcher) GetIfModified(ctx context.Context, url, accept string) (body []byte, updated bool, err error) {
	resp, err := f.do(ctx, url, accept, true)
	if err != nil {
		return nil, false, err
	}
	if resp == nil {
		return nil, false, nil
	}
	defer resp.Body.Close()

	body, err = readBody(resp)
	if err != nil {
		return nil, false, err
	}
	f.remember(url, resp)
	return body, true, nil
}

// Forget drops the validators recorded for url.
func (f *Fetcher) Forget(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.validators, url)
}

// LastFetched reports when url was last fetched with a changed response.
func (f *Fetcher) LastFetched(url string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.validators[url]
	return v.fetchedAt, ok
}

func (f *Fetcher) do(ctx context.Context, url, accept string, conditional bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	if conditional {
		f.mu.Lock()
		v, ok := f.validators[url]
		f.mu.Unlock()
		if ok && v.etag != "" {
			req.Header.Set("If-None-Match", v.etag)
		}
		if ok && v.lastModified != "" {
			req.Header.Set("If-Modified-Since", v.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp)}
	}

	return resp, nil
}

func (f *Fetcher) remember(url string, resp *http.Response) {
	v := validator{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		fetchedAt:    time.Now(),
	}
	f.mu.Lock()
	f.validators[url] = v
	f.mu.Unlock()
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			return seconds
		}
	}
	return 0
}
