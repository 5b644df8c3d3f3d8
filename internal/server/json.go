// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pdiddy/veritas/internal/job"
)

// writeJSON encodes v before writing headers so an encoding failure still
// produces a clean 500.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

// writeError writes {"detail": msg}, the shape the frontend reads.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

// httpStatus maps orchestrator errors to status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, job.ErrNotFound), errors.Is(err, job.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJobError writes err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func (s *Server) writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	msg := err.Error()
	switch code {
	case http.StatusNotFound:
		if errors.Is(err, job.ErrArtifactNotFound) {
			msg = "Artifact not found"
		} else {
			msg = "Job not found"
		}
	case http.StatusConflict:
		msg = "Job already finished"
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "Internal server error"
	}
	writeError(w, code, msg)
}
