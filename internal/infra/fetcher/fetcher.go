// Package fetcher provides the size-capped, timeout-bounded HTTP GET
// primitive every network stage of the pipeline is built on. It rotates a
// browser User-Agent per request and aborts bodies that exceed the caller's
// byte cap. No retries happen at this level; callers decide.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Typed fetch failures. Callers branch with errors.Is / errors.As.
var (
	// ErrTooLarge indicates the response body exceeded the byte cap.
	ErrTooLarge = errors.New("response body too large")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Config controls the fetch primitive.
type Config struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration

	// DefaultHeaders are added to every request.
	DefaultHeaders map[string]string
}

// DefaultConfig returns the production defaults: 15 second deadline, no
// extra headers.
func DefaultConfig() Config {
	return Config{Timeout: 15 * time.Second}
}

// Fetcher performs capped GET requests over a shared HTTP client.
type Fetcher struct {
	client *http.Client
	cfg    Config
}

// New creates a Fetcher over the given client. A nil client gets a default
// one with the configured timeout.
func New(client *http.Client, cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, cfg: cfg}
}

// Fetch GETs url and returns at most maxBytes of body. The body is streamed
// and the read aborts with ErrTooLarge as soon as the cap is crossed, so an
// oversized response never lands in memory. maxBytes <= 0 means no cap.
func (f *Fetcher) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", RandomUserAgent())
	for k, v := range f.cfg.DefaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("Fetch %s: content-length %d: %w", url, resp.ContentLength, ErrTooLarge)
	}

	reader := resp.Body
	if maxBytes > 0 {
		// Read one byte past the cap so an exactly-capped body still passes.
		reader = io.NopCloser(io.LimitReader(resp.Body, maxBytes+1))
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("Fetch %s: read body: %w", url, err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("Fetch %s: %w", url, ErrTooLarge)
	}

	return body, nil
}

// Client exposes the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.client
}
