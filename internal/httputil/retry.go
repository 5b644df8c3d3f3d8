// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the search and download
// clients.
package httputil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryBaseDelay is the default delay before the first retry on HTTP 429.
// Each further retry doubles it: 1 s, 2 s, 4 s.
var RetryBaseDelay = 1 * time.Second

// DefaultMaxRetries is the number of retries after the initial attempt.
const DefaultMaxRetries = 3

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier executes HTTP requests and retries on HTTP 429 (Too Many
// Requests). The zero value uses DefaultMaxRetries, RetryBaseDelay and Sleep.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	Sleep      SleepFunc
	Logger     *slog.Logger
}

// Delay returns the wait before retry number attempt (0-based).
func (r Retrier) Delay(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = RetryBaseDelay
	}
	return base << attempt
}

// Do sends req, retrying while the server answers 429. On each 429 the
// response body is drained and closed before sleeping. After exhausting
// retries the last 429 response is returned unread so the caller can
// inspect it. Transport errors are returned immediately.
func (r Retrier) Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if client == nil {
		client = http.DefaultClient
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := r.Delay(attempt)
		if r.Logger != nil {
			r.Logger.Debug("rate limited, backing off",
				"url", req.URL.Redacted(), "delay", backoff, "attempt", attempt+1, "max_retries", maxRetries)
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// DoWithRetry is Retrier{MaxRetries: maxRetries}.Do.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	return Retrier{MaxRetries: maxRetries}.Do(ctx, client, req)
}
