// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pdiddy/veritas/internal/acquire"
	"github.com/pdiddy/veritas/internal/artifact"
	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/convert"
	"github.com/pdiddy/veritas/internal/httputil"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/internal/quotes"
	"github.com/pdiddy/veritas/internal/rank"
	"github.com/pdiddy/veritas/internal/review"
	"github.com/pdiddy/veritas/internal/search"
	"github.com/pdiddy/veritas/pkg/types"
)

// limited pins the result limit of one backend.
type limited struct {
	search.Backend
	limit int
}

func (l limited) Search(ctx context.Context, req search.Request) search.Result {
	req.Limit = l.limit
	return l.Backend.Search(ctx, req)
}

// SearchOptions builds the fetch options shared by every search backend.
func SearchOptions(cfg types.SearchConfig, store cache.Store, logger *slog.Logger) search.Options {
	return search.Options{
		Client:    &http.Client{Timeout: cfg.Timeout},
		Cache:     store,
		Retrier:   httputil.Retrier{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay, Logger: logger},
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	}
}

// Backends returns the enabled search backends with their per-backend
// result limits applied.
func Backends(cfg types.SearchConfig, store cache.Store, logger *slog.Logger) []search.Backend {
	opts := SearchOptions(cfg, store, logger)
	var out []search.Backend
	if cfg.EnableArxiv {
		out = append(out, limited{search.NewArxivBackend(opts), cfg.ArxivLimit})
	}
	if cfg.EnableSemanticScholar {
		out = append(out, limited{search.NewClient(opts, cfg.SemanticScholarAPIKey), cfg.SemanticLimit})
	}
	if cfg.EnableOpenAlex {
		out = append(out, limited{search.NewOpenAlexBackend(opts, cfg.OpenAlexEmail, cfg.OpenAlexAPIKey), cfg.OpenAlexLimit})
	}
	return out
}

// Deps are the shared clients a Runner is assembled from.
type Deps struct {
	LLM       llm.Client
	Converter convert.Converter
	Cache     cache.Store
	Artifacts artifact.Store
	Logger    *slog.Logger
}

// New assembles a Runner from cfg. The fast model serves the per-chunk,
// per-quote, and query calls; the main model ranks and writes.
func New(cfg types.Config, d Deps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := cfg.Pipeline
	return &Runner{
		Backends: Backends(cfg.Search, d.Cache, logger),
		Ranker: &rank.Ranker{
			LLM:        d.LLM,
			Model:      cfg.LLM.Model,
			QueryModel: cfg.LLM.FastModel,
			MinScore:   float64(p.MinScore),
			Logger:     logger,
		},
		Downloader: &acquire.Downloader{
			Client:    &http.Client{Timeout: cfg.Search.Timeout},
			UserAgent: cfg.Search.UserAgent,
			Email:     cfg.Search.OpenAlexEmail,
			Logger:    logger,
		},
		Extractor: quotes.NewExtractor(d.LLM, d.Converter, cfg.LLM.FastModel, p, logger),
		Ideas: &quotes.Synthesizer{
			LLM:         d.LLM,
			Model:       cfg.LLM.FastModel,
			Concurrency: p.IdeaConcurrency,
			Cache:       d.Cache,
			Logger:      logger,
		},
		Citer:     &review.Citer{LLM: d.LLM, Converter: d.Converter, Model: cfg.LLM.FastModel},
		Writer:    &review.Writer{LLM: d.LLM, Model: cfg.LLM.Model, Logger: logger},
		Artifacts: d.Artifacts,
		MaxPapers: p.MaxPapers,
		WorkDir:   p.WorkDir,
		PapersDir: p.PapersDir,
		Logger:    logger,
	}
}
