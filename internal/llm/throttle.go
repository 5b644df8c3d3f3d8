// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/veritas/internal/httputil"
)

// Throttled wraps a Client with a process-wide spacing between request
// starts and a fixed wait after provider rate limits.
type Throttled struct {
	next    Client
	limiter *rate.Limiter

	// RateLimitWait is slept after ErrRateLimited before the next attempt.
	RateLimitWait time.Duration

	// MaxRetries is the number of retries after a rate-limited attempt.
	MaxRetries int

	Sleep  httputil.SleepFunc
	Logger *slog.Logger
}

// NewThrottled returns next wrapped with a limiter allowing one request
// start per minInterval. A zero interval disables spacing.
func NewThrottled(next Client, minInterval, rateLimitWait time.Duration, maxRetries int, logger *slog.Logger) *Throttled {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Throttled{
		next:          next,
		limiter:       rate.NewLimiter(limit, 1),
		RateLimitWait: rateLimitWait,
		MaxRetries:    maxRetries,
		Sleep:         httputil.Sleep,
		Logger:        logger,
	}
}

// Complete waits for the limiter, calls the wrapped client, and retries
// rate-limited calls. Other errors are returned immediately.
func (t *Throttled) Complete(ctx context.Context, req Request) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
		out, err := t.next.Complete(ctx, req)
		if err == nil || !errors.Is(err, ErrRateLimited) || attempt >= t.MaxRetries {
			return out, err
		}
		t.Logger.Warn("llm rate limited, waiting", "wait", t.RateLimitWait, "attempt", attempt+1)
		if err := t.Sleep(ctx, t.RateLimitWait); err != nil {
			return "", err
		}
	}
}
