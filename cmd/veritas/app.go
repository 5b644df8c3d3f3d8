// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pdiddy/veritas/internal/artifact"
	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/convert"
	"github.com/pdiddy/veritas/internal/job"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/internal/pipeline"
	"github.com/pdiddy/veritas/pkg/types"
)

// app holds the long-lived components shared by serve and research.
type app struct {
	orch    *job.Orchestrator
	closers []func() error
}

// Close stops running jobs, then releases connections in reverse order.
func (a *app) Close() error {
	if a.orch != nil {
		a.orch.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg types.Config, jobsCfg types.JobsConfig, logger *slog.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, closeCache, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	client, closeLLM, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLLM)

	conv, err := convert.New(ctx, cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	arts, err := artifact.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	jobs, closeJobs, err := job.OpenStore(ctx, jobsCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeJobs)

	runner := pipeline.New(cfg, pipeline.Deps{
		LLM:       client,
		Converter: conv,
		Cache:     store,
		Artifacts: arts,
		Logger:    logger,
	})
	a.orch = job.NewOrchestrator(jobs, runner, arts, job.Options{
		MaxConcurrent: jobsCfg.MaxConcurrent,
		Logger:        logger,
	})

	// A Postgres store may be shared with other live servers, so only a
	// private SQLite store is swept for interrupted jobs.
	if jobsCfg.Store == types.JobStoreSQLite {
		n, err := a.orch.Recover(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			logger.Warn("marked interrupted jobs as failed", "count", n)
		}
	}
	return a, nil
}
