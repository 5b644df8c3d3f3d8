// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pdiddy/veritas/internal/job"
	"github.com/pdiddy/veritas/internal/mocks"
	"github.com/pdiddy/veritas/pkg/types"
)

type memArtifacts struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memArtifacts) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (m *memArtifacts) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fixture struct {
	ts     *httptest.Server
	runner *mocks.MockRunner
	arts   *memArtifacts
	orch   *job.Orchestrator
	papers string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	runner := mocks.NewMockRunner(gomock.NewController(t))
	arts := &memArtifacts{data: map[string]string{}}
	orch := job.NewOrchestrator(job.NewMemoryStore(), runner, arts, job.Options{})
	papers := t.TempDir()

	cfg := types.DefaultConfig().Server
	ts := httptest.NewServer(New(orch, cfg, papers, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		orch.Close()
	})
	return &fixture{ts: ts, runner: runner, arts: arts, orch: orch, papers: papers}
}

// succeed scripts one successful run that stores summary.txt.
func (f *fixture) succeed() {
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, j job.Job, _ []job.Upload, rep job.Reporter) (job.Output, error) {
			for _, s := range []job.Stage{job.StageRetrievingSources, job.StageExtractingQuotes, job.StageSynthesizing} {
				if err := rep.Stage(s); err != nil {
					return job.Output{}, err
				}
			}
			rep.Log("done")
			key := j.ID + "/summary.txt"
			f.arts.mu.Lock()
			f.arts.data[key] = "X raises Y."
			f.arts.mu.Unlock()
			return job.Output{
				Result:    job.Result{Summary: "X raises Y.", SourceFiles: []string{"a.pdf"}},
				Artifacts: map[string]string{"summary.txt": key},
			}, nil
		})
}

func (f *fixture) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func readEvents(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	return out
}

func (f *fixture) submit(t *testing.T) string {
	t.Helper()
	resp := f.postJSON(t, "/api/jobs", `{"query":"What is the effect of X on Y?"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return decode[map[string]string](t, resp.Body)["job_id"]
}

func (f *fixture) waitTerminal(t *testing.T, id string) job.Job {
	t.Helper()
	var j job.Job
	require.Eventually(t, func() bool {
		var err error
		j, err = f.orch.Get(context.Background(), id)
		return err == nil && j.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return j
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"/", "/health", "/api/health"} {
		resp := f.get(t, p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.Equal(t, "ok", decode[map[string]string](t, resp.Body)["status"])
	}
}

func TestJobLifecycle(t *testing.T) {
	f := newFixture(t)
	f.succeed()
	id := f.submit(t)

	stream := f.get(t, "/api/jobs/"+id+"/stream")
	assert.Equal(t, "application/x-ndjson", stream.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", stream.Header.Get("Cache-Control"))
	events := readEvents(t, stream.Body)
	require.Len(t, events, 5)
	assert.Equal(t, "step", events[0]["type"])
	assert.Equal(t, "retrieving-sources", events[0]["step"])
	assert.Equal(t, "log", events[3]["type"])
	last := events[4]
	assert.Equal(t, "result", last["type"])
	assert.Equal(t, "X raises Y.", last["summary"])
	assert.Equal(t, []any{"summary.txt"}, last["artifacts"])

	f.waitTerminal(t, id)
	snap := decode[job.Job](t, f.get(t, "/api/jobs/"+id).Body)
	assert.Equal(t, job.StatusSucceeded, snap.Status)
	assert.Equal(t, 100, snap.Progress)

	art := f.get(t, "/api/jobs/"+id+"/artifacts/summary.txt")
	require.Equal(t, http.StatusOK, art.StatusCode)
	body, _ := io.ReadAll(art.Body)
	assert.Equal(t, "X raises Y.", string(body))
	assert.Equal(t, "text/plain; charset=utf-8", art.Header.Get("Content-Type"))

	dl := f.get(t, "/api/jobs/"+id+"/download/summary.txt")
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/jobs/"+id+"/artifacts/other.md").StatusCode)

	cancel := f.postJSON(t, "/api/jobs/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, cancel.StatusCode)

	list := decode[[]job.Job](t, f.get(t, "/api/jobs").Body)
	assert.Len(t, list, 1)

	req, _ := http.NewRequest(http.MethodDelete, f.ts.URL+"/api/jobs/"+id, nil)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/jobs/"+id).StatusCode)
}

func TestArtifactOfRunningJob(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	defer close(release)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ job.Job, _ []job.Upload, rep job.Reporter) (job.Output, error) {
			rep.Stage(job.StageRetrievingSources)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return job.Output{}, errors.New("stopped")
		})
	id := f.submit(t)
	require.Eventually(t, func() bool {
		j, err := f.orch.Get(context.Background(), id)
		return err == nil && j.Stage == job.StageRetrievingSources
	}, 5*time.Second, 5*time.Millisecond)

	resp := f.get(t, "/api/jobs/"+id+"/artifacts/summary.txt")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Artifact not found", decode[map[string]string](t, resp.Body)["detail"])

	cancel := f.postJSON(t, "/api/jobs/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, cancel.StatusCode)
	j := decode[job.Job](t, cancel.Body)
	assert.Equal(t, job.KindCancelled, j.ErrorKind)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/jobs", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Query is required.", decode[map[string]string](t, resp.Body)["detail"])

	assert.Equal(t, http.StatusBadRequest, f.postJSON(t, "/api/jobs", `{`).StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("query", "q")
	fw, _ := mw.CreateFormFile("files", "notes.pdf")
	fw.Write([]byte("not a pdf"))
	mw.Close()
	bad, err := http.Post(f.ts.URL+"/api/jobs", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/jobs/missing").StatusCode)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/jobs/missing/stream").StatusCode)
}

func TestResearchStreamsWithUploads(t *testing.T) {
	f := newFixture(t)
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, j job.Job, files []job.Upload, rep job.Reporter) (job.Output, error) {
			assert.Equal(t, "effect of X", j.Question)
			require.Len(t, files, 1, "non-PDF uploads are skipped")
			assert.Equal(t, "study.pdf", files[0].Filename)
			rep.Stage(job.StageRetrievingSources)
			return job.Output{}, job.NewStageError("No verified quotes could be extracted from the sources.")
		})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("query", "  effect of X ")
	pdf, _ := mw.CreateFormFile("files", "study.pdf")
	pdf.Write([]byte("%PDF-1.5 body"))
	txt, _ := mw.CreateFormFile("files", "readme.txt")
	txt.Write([]byte("hello"))
	mw.Close()

	resp, err := http.Post(f.ts.URL+"/api/research", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Job-ID"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 2)
	assert.Equal(t, "step", events[0]["type"])
	assert.Equal(t, "error", events[1]["type"])
	assert.Equal(t, "No verified quotes could be extracted from the sources.", events[1]["detail"])
}

func TestPaperDownload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.papers, "Study.pdf"), []byte("%PDF-1.4 x"), 0o644))

	ok := f.get(t, "/api/papers/Study.pdf")
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, "application/pdf", ok.Header.Get("Content-Type"))
	body, _ := io.ReadAll(ok.Body)
	assert.Equal(t, "%PDF-1.4 x", string(body))

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/papers/notes.txt").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, `/api/papers/a%5Cb.pdf`).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/papers/missing.pdf").StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.ts.URL+"/api/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	other := f.get(t, "/health")
	assert.Empty(t, other.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, httpStatus(job.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, httpStatus(job.ErrArtifactNotFound))
	assert.Equal(t, http.StatusBadRequest, httpStatus(job.ErrInvalid))
	assert.Equal(t, http.StatusConflict, httpStatus(job.ErrTerminal))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(errors.New("x")))
}
