// Package services holds the HTTP clients for the external enrichment
// services: popularity scoring and channel classification. Every client is
// guarded by a circuit breaker, a short retry policy, and a QPS limiter,
// since each one is called once per article.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"today-feed/internal/resilience/circuitbreaker"
	"today-feed/internal/resilience/retry"
)

// defaultQPS bounds per-service request rate across the whole fan-out.
const defaultQPS = 50

// PopularityClient calls the popularity service by canonical URL.
type PopularityClient struct {
	client   *http.Client
	endpoint string
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	limiter  *rate.Limiter
}

// NewPopularityClient creates a client for the given endpoint.
func NewPopularityClient(client *http.Client, endpoint string) *PopularityClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PopularityClient{
		client:   client,
		endpoint: endpoint,
		breaker:  circuitbreaker.New(circuitbreaker.PopularityConfig()),
		retryCfg: retry.ScoringAPIConfig(),
		limiter:  rate.NewLimiter(rate.Limit(defaultQPS), defaultQPS),
	}
}

// Score fetches the popularity components for url and returns their sum.
// The service responds with nested numeric components; the raw score is the
// recursive sum of every numeric leaf.
func (c *PopularityClient) Score(ctx context.Context, url string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("Score: %w", err)
	}

	var payload map[string]any
	err := retry.WithBackoff(ctx, c.retryCfg, func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return postJSON(ctx, c.client, c.endpoint, map[string]string{"url": url})
		})
		if err != nil {
			return err
		}
		payload = result.(map[string]any)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Score %s: %w", url, err)
	}

	return sumNumericLeaves(payload), nil
}

// sumNumericLeaves walks a decoded JSON value and sums every number in it.
func sumNumericLeaves(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case map[string]any:
		var sum float64
		for _, child := range val {
			sum += sumNumericLeaves(child)
		}
		return sum
	case []any:
		var sum float64
		for _, child := range val {
			sum += sumNumericLeaves(child)
		}
		return sum
	default:
		return 0
	}
}

// postJSON POSTs a JSON body and decodes a JSON object response.
func postJSON(ctx context.Context, client *http.Client, endpoint string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: endpoint}
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}
