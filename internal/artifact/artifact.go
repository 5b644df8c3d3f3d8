// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact stores job outputs (review, summary, quotes CSV,
// citations, source PDFs) under keys of the form "<job id>/<name>".
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

// ErrNotFound is returned by Open when no object exists for the key.
var ErrNotFound = errors.New("artifact not found")

// Store reads and writes artifact objects.
type Store interface {
	// Put writes r under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key joins a job ID and an artifact name.
func Key(jobID, name string) string {
	return jobID + "/" + name
}

// cleanKey rejects keys that are empty, absolute, or escape the store root.
func cleanKey(key string) (string, error) {
	c := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || c == "." || strings.HasPrefix(c, "/") || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return c, nil
}

// ContentType guesses the media type of an artifact from its name.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg types.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case types.StorageLocal, "":
		return NewLocalStore(cfg.Dir)
	case types.StorageMinio:
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
