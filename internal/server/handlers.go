// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/veritas/internal/artifact"
	"github.com/pdiddy/veritas/internal/job"
)

// submission is the JSON body of POST /api/jobs.
type submission struct {
	Query string `json:"query"`
}

// parseRequest reads a research request from a multipart form (query,
// files) or a JSON body. When pdfOnly is set, non-PDF uploads are skipped
// instead of being passed on for validation.
func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request, pdfOnly bool) (job.Request, error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var sub submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return job.Request{}, fmt.Errorf("%w: invalid JSON body", job.ErrInvalid)
		}
		return job.Request{Question: sub.Query}, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return job.Request{}, fmt.Errorf("%w: upload exceeds %d bytes", job.ErrInvalid, tooBig.Limit)
		}
		return job.Request{}, fmt.Errorf("%w: %v", job.ErrInvalid, err)
	}
	req := job.Request{Question: r.FormValue("query")}
	if r.MultipartForm == nil {
		return req, nil
	}
	for _, field := range []string{"files", "files[]"} {
		for _, fh := range r.MultipartForm.File[field] {
			if pdfOnly && !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
				continue
			}
			f, err := fh.Open()
			if err != nil {
				return job.Request{}, fmt.Errorf("reading upload %s: %w", fh.Filename, err)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return job.Request{}, fmt.Errorf("reading upload %s: %w", fh.Filename, err)
			}
			req.Files = append(req.Files, job.Upload{Filename: fh.Filename, Content: content})
		}
	}
	return req, nil
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(w, r, false)
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Query is required.")
		return
	}
	j, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, job.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJobError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+j.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": j.ID, "status": string(j.Status)})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context())
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeJobError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	events, err := s.jobs.Stream(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	s.writeNDJSON(w, r, events)
}

// research is the one-shot endpoint: submit, then stream in the same
// response.
func (s *Server) research(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(w, r, true)
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Query is required.")
		return
	}
	j, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, job.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJobError(w, r, err)
		return
	}
	events, err := s.jobs.Stream(r.Context(), j.ID)
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	w.Header().Set("X-Job-ID", j.ID)
	s.writeNDJSON(w, r, events)
}

// writeNDJSON writes one JSON object per line, flushing after each.
func (s *Server) writeNDJSON(w http.ResponseWriter, r *http.Request, events <-chan job.Event) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("stream client gone", "path", r.URL.Path, "error", err)
			return
		}
		rc.Flush()
	}
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, false)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, true)
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, attachment bool) {
	name := r.PathValue("name")
	rc, err := s.jobs.Artifact(r.Context(), r.PathValue("id"), name)
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", artifact.ContentType(name))
	if attachment {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("artifact copy failed", "name", name, "error", err)
	}
}

// paper serves a retained source PDF by base name.
func (s *Server) paper(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		writeError(w, http.StatusBadRequest, "Invalid filename")
		return
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are available")
		return
	}
	f, err := os.Open(filepath.Join(s.papersDir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, st.ModTime(), f)
}
