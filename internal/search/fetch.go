// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/httputil"
	"github.com/pdiddy/veritas/pkg/types"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 32 << 20

// Options configures the fetch core shared by all backends.
type Options struct {
	// Client is the HTTP client; nil uses a client with a 30 s timeout.
	Client *http.Client

	// Cache stores successful responses; nil disables caching.
	Cache cache.Store

	// Retrier handles HTTP 429 backoff.
	Retrier httputil.Retrier

	UserAgent string
	Logger    *slog.Logger

	// Now stamps cache entries; nil uses time.Now.
	Now func() time.Time
}

// parseFunc decodes a successful response body into papers.
type parseFunc func(body []byte) ([]types.PaperMetadata, error)

// fetcher performs cached, rate-limit-aware GET requests.
type fetcher struct {
	opts Options
}

func newFetcher(opts Options) fetcher {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retrier.Logger == nil {
		opts.Retrier.Logger = opts.Logger
	}
	return fetcher{opts: opts}
}

// get resolves endpoint+params from the cache or the network and parses the
// body. header carries credentials and is not part of the cache signature.
// The returned Result never carries a Go error: transport, status, and parse
// failures are all folded into Status.
func (f fetcher) get(ctx context.Context, backend, endpoint string, params url.Values, header http.Header, parse parseFunc) Result {
	log := f.opts.Logger.With("backend", backend)
	key := cache.Signature(endpoint, params)

	if f.opts.Cache != nil {
		e, ok, err := f.opts.Cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("cache read failed", "error", err)
		case ok:
			papers, perr := parse(e.Body)
			if perr == nil {
				log.Debug("cache hit", "key", key)
				if papers == nil {
					papers = []types.PaperMetadata{}
				}
				return Result{Papers: papers, Status: StatusOK, Cached: true}
			}
			log.Warn("discarding unparseable cache entry", "key", key, "error", perr)
		}
	}

	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return f.fail(log, StatusError, fmt.Sprintf("creating request: %v", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.opts.Retrier.Do(ctx, f.opts.Client, req)
	if err != nil {
		return f.fail(log, StatusError, fmt.Sprintf("%s request: %v", backend, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return f.fail(log, StatusRateLimited, fmt.Sprintf("%s rate limit persisted after retries", backend))
	case resp.StatusCode == http.StatusNotFound:
		return Result{Papers: []types.PaperMetadata{}, Status: StatusNotFound, Detail: fmt.Sprintf("%s: not found", backend)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return f.fail(log, StatusError, fmt.Sprintf("%s returned HTTP %d", backend, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return f.fail(log, StatusError, fmt.Sprintf("reading %s response: %v", backend, err))
	}

	papers, err := parse(body)
	if err != nil {
		return f.fail(log, StatusError, fmt.Sprintf("parsing %s response: %v", backend, err))
	}

	if f.opts.Cache != nil {
		if err := f.opts.Cache.Put(ctx, key, cache.Entry{Body: body, RetrievedAt: f.opts.Now().UTC()}); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}
	if papers == nil {
		papers = []types.PaperMetadata{}
	}
	return Result{Papers: papers, Status: StatusOK}
}

func (f fetcher) fail(log *slog.Logger, status Status, detail string) Result {
	log.Warn("search request failed", "status", status, "detail", detail)
	return Result{Papers: []types.PaperMetadata{}, Status: status, Detail: detail}
}
