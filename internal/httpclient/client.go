// Package httpclient provides the HTTP plumbing shared by every weather
// provider: a pooled transport, base-URL handling, JSON and raw body
// fetches, and a small set of typed errors for the failure modes callers
// care about.
package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lplpqq/forecast/internal/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every request issued through a Client,
	// including connection setup and reading the body.
	DefaultTimeout = 30 * time.Second

	// PoolSize is the connection budget of the shared transport. All
	// providers together run at most this many concurrent collection
	// tasks, so idle connections above it would never be used.
	PoolSize = 50
)

// NewPooledTransport returns a transport sized for the collector's
// concurrency. Hosts are polled in bursts, so keeping connections alive
// between tasks matters more than the defaults allow.
func NewPooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        PoolSize,
		MaxIdleConnsPerHost: PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Client issues requests against a single provider's base URL.
type Client struct {
	base       string // scheme://host, no path
	basePath   string // path prefix from the base URL, no trailing slash
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option adjusts a Client at construction time.
type Option func(*Client)

// WithTransport replaces the default pooled transport. Providers share a
// single transport so the connection budget is global, not per-provider.
func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = t }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit makes every request wait for the limiter first. Providers
// with strict per-key quotas use this to stay under them.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New builds a Client for the given base URL. Trailing slashes on the base
// are trimmed (with a warning) so that joining never produces a double
// slash; request paths missing a leading slash get one added.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing base URL %q: %v", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	basePath := parsed.Path
	if strings.HasSuffix(basePath, "/") {
		log.Warnf("base URL %q has a trailing slash, trimming it", baseURL)
		basePath = strings.TrimRight(basePath, "/")
	}

	c := &Client{
		base:     parsed.Scheme + "://" + parsed.Host,
		basePath: basePath,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: NewPooledTransport(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolve joins a request path onto the base URL. Absolute URLs pass
// through untouched so providers can follow links served by the upstream.
func (c *Client) resolve(path string, query url.Values) string {
	var full string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		full = path
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		full = c.base + c.basePath + path
	}
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

func (c *Client) do(ctx context.Context, method, fullURL string, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating %s request for %q: %v", method, fullURL, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log.Debugf("sending %s request to %q", method, fullURL)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: fullURL, Err: err}
	}
	log.Debugf("%s %q returned %d in %v", method, fullURL, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode, URL: fullURL}
	}
	return payload, nil
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	fullURL := c.resolve(path, query)
	payload, err := c.do(ctx, http.MethodGet, fullURL, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &DecodeError{URL: fullURL, Err: err}
	}
	return nil
}

// PostJSON sends body as JSON and, when out is non-nil, decodes the JSON
// response into it.
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request body: %v", err)
	}

	fullURL := c.resolve(path, query)
	payload, err := c.do(ctx, http.MethodPost, fullURL, bytes.NewReader(encoded), "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &DecodeError{URL: fullURL, Err: err}
	}
	return nil
}

// GetRaw fetches path and returns the body bytes as-is.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.resolve(path, query), nil, "")
}

// GetGzipped fetches path and decompresses the gzip-encoded body. Used by
// bulk endpoints that serve .csv.gz archives.
func (c *Client) GetGzipped(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.resolve(path, query)
	raw, err := c.do(ctx, http.MethodGet, fullURL, nil, "")
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{URL: fullURL, Err: err}
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return nil, &DecodeError{URL: fullURL, Err: err}
	}
	return decompressed, nil
}
