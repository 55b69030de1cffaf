// Package unshorten resolves feed links through their redirect chains to the
// canonical article URL. The canonical URL is what the article identity hash
// is computed over, so two feeds pointing at the same story through different
// shorteners collapse to one article.
package unshorten

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"today-feed/internal/infra/fetcher"
)

// maxRedirects bounds the redirect chain; shorteners rarely chain more than
// two or three hops.
const maxRedirects = 10

// Resolver follows redirect chains with HEAD-equivalent GETs that discard the
// body.
type Resolver struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Resolver. The client's redirect policy is replaced; pass a
// dedicated client rather than a shared one.
func New(client *http.Client, timeout time.Duration) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{client: client, timeout: timeout}
}

// Resolve follows link to its final URL and returns it in absolute form.
// The response body is never read.
func (r *Resolver) Resolve(ctx context.Context, link string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("Resolve: empty link")
	}
	if _, err := url.ParseRequestURI(link); err != nil {
		return "", fmt.Errorf("Resolve: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("Resolve: build request: %w", err)
	}
	req.Header.Set("User-Agent", fetcher.RandomUserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Resolve %s: %w", link, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &fetcher.StatusError{StatusCode: resp.StatusCode, URL: link}
	}

	return resp.Request.URL.String(), nil
}
