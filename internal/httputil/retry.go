// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by stages that call
// external services (the arXiv API and PDF hosts).
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 10 * time.Second
)

// Client wraps an http.Client with retry handling for HTTP 429 (Too Many
// Requests) responses and a shared User-Agent header.
type Client struct {
	// HTTP is the underlying client. Its Timeout applies per attempt.
	HTTP *http.Client

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// MaxRetries is the number of 429 retries before giving up.
	// Zero means the default (5).
	MaxRetries int

	// BaseDelay is the starting backoff duration, doubled on each 429:
	// 10 s, 20 s, 40 s, ... Zero means the default (10 s). Tests set a
	// tiny value to avoid real sleeps.
	BaseDelay time.Duration
}

// Do executes req, retrying on HTTP 429 with exponential backoff. On
// each 429 the response body is drained and closed before sleeping. If
// the context is cancelled during a backoff wait it returns ctx.Err().
// After exhausting retries the last 429 response is returned so the
// caller can inspect it.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := c.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}

	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.HTTP.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * baseDelay

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Get issues a GET request for url via Do.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}
