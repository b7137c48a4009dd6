package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/storage"
)

// Fetcher reads a site resource by absolute site path
// (e.g. /assets/data/scenarios/x/x.json).
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, path string) ([]byte, error) { return f(ctx, path) }

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Is lets errors.Is(err, apperr.ErrNotFound) match a 404.
func (e *StatusError) Is(target error) bool {
	return target == apperr.ErrNotFound && e.Code == http.StatusNotFound
}

const maxResourceBytes = 8 << 20

// HTTPFetcher fetches resources from a web server.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) { f.client.Timeout = d }
}

// NewHTTPFetcher creates a fetcher for baseURL (scheme and host, e.g.
// http://localhost:8080).
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a GET for path. Any non-2xx status is a *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	url := f.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	return data, nil
}

// StorageFetcher serves site paths from a storage.Provider rooted at the
// site directory.
type StorageFetcher struct {
	store storage.Provider
}

// NewStorageFetcher wraps store.
func NewStorageFetcher(store storage.Provider) *StorageFetcher {
	return &StorageFetcher{store: store}
}

// Fetch implements Fetcher.
func (f *StorageFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	return f.store.Read(strings.TrimPrefix(path, "/"))
}

// CachedFetcher keeps recently fetched resources in an LRU shared by all
// sessions. Only successful fetches are cached.
type CachedFetcher struct {
	next  Fetcher
	cache *lru.Cache[string, []byte]
}

// NewCachedFetcher wraps next with a cache of size entries.
func NewCachedFetcher(next Fetcher, size int) (*CachedFetcher, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("fetch: create cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: c}, nil
}

// Fetch implements Fetcher.
func (f *CachedFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if data, ok := f.cache.Get(path); ok {
		return data, nil
	}
	data, err := f.next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	f.cache.Add(path, data)
	return data, nil
}

// InvalidatePrefix drops every cached path starting with prefix and returns
// how many entries were removed.
func (f *CachedFetcher) InvalidatePrefix(prefix string) int {
	return f.Invalidate(func(path string) bool { return strings.HasPrefix(path, prefix) })
}

// Invalidate drops every cached path for which match returns true.
func (f *CachedFetcher) Invalidate(match func(path string) bool) int {
	n := 0
	for _, k := range f.cache.Keys() {
		if match(k) && f.cache.Remove(k) {
			n++
		}
	}
	return n
}

// Len returns the number of cached entries.
func (f *CachedFetcher) Len() int { return f.cache.Len() }
