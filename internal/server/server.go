// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the research job API over HTTP: submission,
// polling, NDJSON progress streams, artifact and source PDF downloads.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pdiddy/veritas/internal/job"
	"github.com/pdiddy/veritas/pkg/types"
)

// Jobs is the orchestrator surface the handlers use.
type Jobs interface {
	Submit(ctx context.Context, req job.Request) (job.Job, error)
	Get(ctx context.Context, id string) (job.Job, error)
	List(ctx context.Context) ([]job.Job, error)
	Stream(ctx context.Context, id string) (<-chan job.Event, error)
	Cancel(ctx context.Context, id string) (job.Job, error)
	Delete(ctx context.Context, id string) error
	Artifact(ctx context.Context, id, name string) (io.ReadCloser, error)
}

// Server serves the Veritas API.
type Server struct {
	jobs      Jobs
	papersDir string
	maxUpload int64
	origins   []string
	logger    *slog.Logger
}

// New returns a Server. papersDir holds retained source PDFs.
func New(jobs Jobs, cfg types.ServerConfig, papersDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		jobs:      jobs,
		papersDir: papersDir,
		maxUpload: cfg.MaxUploadBytes,
		origins:   cfg.AllowedOrigins,
		logger:    logger,
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.health)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/jobs", s.createJob)
	mux.HandleFunc("GET /api/jobs", s.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.getJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.deleteJob)
	mux.HandleFunc("GET /api/jobs/{id}/stream", s.streamJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.cancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/artifacts/{name}", s.artifact)
	mux.HandleFunc("GET /api/jobs/{id}/download/{name}", s.download)

	mux.HandleFunc("POST /api/research", s.research)
	mux.HandleFunc("GET /api/papers/{filename}", s.paper)

	var h http.Handler = mux
	h = cors(s.origins)(h)
	h = recoverer(s.logger)(h)
	h = logging(s.logger)(h)
	return h
}

// Run serves on addr until ctx is done, then shuts down gracefully.
// Open streams are cut after the shutdown grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Veritas API", "status": "ok"})
}
