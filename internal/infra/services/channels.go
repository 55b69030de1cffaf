package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"today-feed/internal/domain/entity"
	"today-feed/internal/resilience/circuitbreaker"
	"today-feed/internal/resilience/retry"
)

// ChannelsClient calls the internal channel classification service. It is
// only exercised for the predicted-channels locale.
type ChannelsClient struct {
	client   *http.Client
	endpoint string
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	limiter  *rate.Limiter
}

// NewChannelsClient creates a client for the given endpoint.
func NewChannelsClient(client *http.Client, endpoint string) *ChannelsClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ChannelsClient{
		client:   client,
		endpoint: endpoint,
		breaker:  circuitbreaker.New(circuitbreaker.ChannelsConfig()),
		retryCfg: retry.ScoringAPIConfig(),
		limiter:  rate.NewLimiter(rate.Limit(defaultQPS), defaultQPS),
	}
}

// Predict returns the predicted channel names for url.
func (c *ChannelsClient) Predict(ctx context.Context, url string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Predict: %w", err)
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
		return nil, fmt.Errorf("Predict %s: %w", url, err)
	}

	return stringList(payload["results"]), nil
}

// ExternalChannelsClient calls the external classification service, which
// returns both channel names and raw per-channel confidences.
type ExternalChannelsClient struct {
	client   *http.Client
	endpoint string
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	limiter  *rate.Limiter
}

// NewExternalChannelsClient creates a client for the given endpoint.
func NewExternalChannelsClient(client *http.Client, endpoint string) *ExternalChannelsClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ExternalChannelsClient{
		client:   client,
		endpoint: endpoint,
		breaker:  circuitbreaker.New(circuitbreaker.ChannelsConfig()),
		retryCfg: retry.ScoringAPIConfig(),
		limiter:  rate.NewLimiter(rate.Limit(defaultQPS), defaultQPS),
	}
}

// Classify returns the external channels and the raw confidence list for url.
func (c *ExternalChannelsClient) Classify(ctx context.Context, url string) ([]string, []entity.ChannelConfidence, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("Classify: %w", err)
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
		return nil, nil, fmt.Errorf("Classify %s: %w", url, err)
	}

	channels := stringList(payload["channels"])

	var raw []entity.ChannelConfidence
	if items, ok := payload["raw"].([]any); ok {
		for _, item := range items {
			encoded, err := json.Marshal(item)
			if err != nil {
				continue
			}
			var cc entity.ChannelConfidence
			if err := json.Unmarshal(encoded, &cc); err != nil {
				continue
			}
			raw = append(raw, cc)
		}
	}

	return channels, raw, nil
}

// stringList coerces a decoded JSON array into a string slice, skipping
// non-string members.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}
