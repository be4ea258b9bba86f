// Package search wraps the third-party transfer-index HTTP API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRateLimited is returned when the index keeps responding 429 after all
// backoff attempts. Callers feed this into their circuit breaker.
var ErrRateLimited = errors.New("search index rate limited (429)")

// RateLimitError carries how many 429 responses a single Search call absorbed
// before giving up. Breakers count every hit, not just the final failure.
type RateLimitError struct {
	Hits int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("search index rate limited (%d consecutive 429s)", e.Hits)
}

// Is makes errors.Is(err, ErrRateLimited) hold for callers that only care
// about the category.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Default configuration values.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements the transfer-index search API over HTTP POST.
type Client struct {
	endpoint    string
	apiKey      string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// Option configures Client.
type Option func(*Client)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new transfer-index search client.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search posts the request and returns one page of enriched transactions,
// newest first. Rate limiting is retried with capped exponential backoff;
// exhausted retries surface as a RateLimitError matching ErrRateLimited.
func (c *Client) Search(ctx context.Context, req Request) ([]EnrichedTransaction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error
	var rateLimitHits int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimitHits++
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var results []EnrichedTransaction
		if err := json.Unmarshal(respBody, &results); err != nil {
			return nil, fmt.Errorf("unmarshal search response: %w", err)
		}
		return results, nil
	}

	if errors.Is(lastErr, ErrRateLimited) {
		return nil, &RateLimitError{Hits: rateLimitHits}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
