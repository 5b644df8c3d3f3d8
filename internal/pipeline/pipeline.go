// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the three research stages for one job: retrieving
// sources, extracting quotes, and synthesizing the summary and review.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/veritas/internal/acquire"
	"github.com/pdiddy/veritas/internal/artifact"
	"github.com/pdiddy/veritas/internal/job"
	"github.com/pdiddy/veritas/internal/quotes"
	"github.com/pdiddy/veritas/internal/rank"
	"github.com/pdiddy/veritas/internal/review"
	"github.com/pdiddy/veritas/internal/search"
	"github.com/pdiddy/veritas/pkg/types"
)

// Artifact names declared by a succeeded job, besides the source PDFs.
const (
	ArtifactReview    = "literature-review.md"
	ArtifactSummary   = "summary.txt"
	ArtifactQuotes    = "quotes.csv"
	ArtifactCitations = "citations.json"
	ArtifactPaper     = "paper.pdf"
)

// reserved holds artifact names a source PDF may not take.
var reserved = map[string]bool{ArtifactPaper: true}

// Stage failure messages shown to users. Every other Run error is reported
// to users generically.
var (
	ErrNoCandidates = job.NewStageError("No open-access papers found across arXiv, Semantic Scholar, or OpenAlex.")
	ErrIrrelevant   = job.NewStageError("All found papers were deemed irrelevant. Try broader technical keywords.")
	ErrNoDownloads  = job.NewStageError("PDF download failed for selected papers (access may be restricted).")
	ErrNoText       = job.NewStageError("No text could be extracted from the source PDFs.")
	ErrNoQuotes     = job.NewStageError("No verified quotes could be extracted from the sources.")
)

// Runner implements job.Runner.
type Runner struct {
	Backends   []search.Backend
	Ranker     *rank.Ranker
	Downloader *acquire.Downloader
	Extractor  *quotes.Extractor
	Ideas      *quotes.Synthesizer
	Citer      *review.Citer
	Writer     *review.Writer
	Artifacts  artifact.Store

	// MaxPapers caps retrieved sources when no files are uploaded.
	MaxPapers int

	// WorkDir holds per-job scratch directories, removed after the run.
	WorkDir string

	// PapersDir retains source PDFs after the run, named by RetainedName.
	// Empty disables it.
	PapersDir string

	Logger *slog.Logger
}

var _ job.Runner = (*Runner)(nil)

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Run executes every stage for j.
func (r *Runner) Run(ctx context.Context, j job.Job, files []job.Upload, rep job.Reporter) (job.Output, error) {
	log := r.logger().With("job", j.ID)

	work := filepath.Join(r.WorkDir, j.ID)
	papersDir := filepath.Join(work, "papers")
	if err := os.MkdirAll(papersDir, 0o755); err != nil {
		return job.Output{}, fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(work)

	if err := rep.Stage(job.StageRetrievingSources); err != nil {
		return job.Output{}, err
	}
	var (
		papers []types.Paper
		err    error
	)
	if len(files) > 0 {
		papers, err = stageUploads(files, papersDir)
		if err == nil {
			rep.Log(fmt.Sprintf("Using %d uploaded PDF(s) as sources", len(papers)))
		}
	} else {
		papers, err = r.retrieve(ctx, j.Question, papersDir, rep)
	}
	if err != nil {
		return job.Output{}, err
	}
	if err := avoidReserved(papers); err != nil {
		return job.Output{}, err
	}
	log.Info("sources ready", "papers", len(papers))

	if err := rep.Stage(job.StageExtractingQuotes); err != nil {
		return job.Output{}, err
	}
	paths := make([]string, len(papers))
	for i, p := range papers {
		paths[i] = p.PDFPath
	}
	rows, sum, err := r.Extractor.ExtractAll(ctx, paths, j.Question)
	if err != nil {
		return job.Output{}, err
	}
	rep.Log(fmt.Sprintf("Extracted %d quotes from %d PDF(s) (%d cached, %d failed)", len(rows), sum.Total(), sum.Cached, sum.Failed))
	if len(rows) == 0 {
		if sum.Failed == sum.Total() {
			return job.Output{}, ErrNoText
		}
		return job.Output{}, ErrNoQuotes
	}

	if err := rep.Stage(job.StageSynthesizing); err != nil {
		return job.Output{}, err
	}
	res, err := r.synthesize(ctx, j.Question, rows, papers, rep)
	if err != nil {
		return job.Output{}, err
	}

	res.PaperFiles = r.retain(j.ID, papers, log)
	arts, err := r.store(ctx, j.ID, res, rows, papers)
	if err != nil {
		return job.Output{}, err
	}
	return job.Output{Result: res, Artifacts: arts}, nil
}

// retrieve converts the question into a query, searches every backend,
// ranks the merged candidates, and downloads the selected PDFs.
func (r *Runner) retrieve(ctx context.Context, question, dir string, rep job.Reporter) ([]types.Paper, error) {
	rep.Log("Global research query: " + question)
	query := r.Ranker.ConvertQuery(ctx, question)
	rep.Log("Searching arXiv, Semantic Scholar, and OpenAlex for: " + query)

	out := search.SearchAll(ctx, r.Backends, search.Request{Query: query, OpenAccess: true}, r.logger())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(out.Papers) == 0 {
		return nil, ErrNoCandidates
	}

	maxPapers := max(1, r.MaxPapers)
	rep.Log(fmt.Sprintf("Ranking %d candidates...", len(out.Papers)))
	top := r.Ranker.Select(ctx, question, out.Papers, maxPapers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(top) == 0 {
		rep.Log("No verified matches found. Specialized niche research may be sparse.")
		return nil, ErrIrrelevant
	}
	if len(top) < maxPapers {
		rep.Log(fmt.Sprintf("Note: Found %d verified matches.", len(top)))
	} else {
		rep.Log(fmt.Sprintf("Identified %d highly relevant papers, discarded %d domain-mismatches.", len(top), len(out.Papers)-len(top)))
	}

	rep.Log(fmt.Sprintf("Downloading %d verified sources...", len(top)))
	metas := make([]types.PaperMetadata, len(top))
	scores := make(map[string]int, len(top))
	for i, s := range top {
		metas[i] = s.Paper
		scores[acquire.CandidateURL(s.Paper)] = int(math.Round(s.Score))
	}
	papers := r.Downloader.DownloadAll(ctx, metas, dir)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, ErrNoDownloads
	}
	for i := range papers {
		papers[i].Score = scores[papers[i].SourceURL]
	}
	rep.Log(fmt.Sprintf("Successfully prepared %d papers for analysis.", len(papers)))
	return papers, nil
}

// stageUploads writes uploaded PDFs into dir under unique base names.
func stageUploads(files []job.Upload, dir string) ([]types.Paper, error) {
	used := make(map[string]int, len(files))
	papers := make([]types.Paper, 0, len(files))
	for _, f := range files {
		name := uploadName(f.Filename)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = strings.TrimSuffix(name, filepath.Ext(name)) + "_" + strconv.Itoa(n+1) + ".pdf"
		} else {
			used[name] = 1
		}
		dest := filepath.Join(dir, name)
		if err := os.WriteFile(dest, f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("saving upload %s: %w", f.Filename, err)
		}
		papers = append(papers, types.Paper{
			Filename: name,
			PDFPath:  dest,
			Title:    review.TitleFromFilename(name),
			Source:   types.SourceUpload,
		})
	}
	return papers, nil
}

// uploadName strips any client-supplied directory from name.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.pdf"
	}
	return name
}

func (r *Runner) synthesize(ctx context.Context, question string, rows []types.Quote, papers []types.Paper, rep job.Reporter) (job.Result, error) {
	if r.Ideas != nil {
		if err := r.Ideas.Synthesize(ctx, rows, question); err != nil {
			return job.Result{}, err
		}
		rep.Log(fmt.Sprintf("Synthesized ideas for %d quotes", len(rows)))
	}

	rep.Log("Inferring citations for the sources...")
	citations, err := r.Citer.Cite(ctx, papers)
	if err != nil {
		return job.Result{}, err
	}

	rep.Log("Synthesizing executive summary...")
	summary, err := r.Writer.Summary(ctx, question, rows)
	if err != nil {
		return job.Result{}, err
	}

	rep.Log("Generating comprehensive literature review...")
	rv, err := r.Writer.Write(ctx, question, rows, citations)
	if err != nil {
		return job.Result{}, err
	}

	files := make([]string, len(papers))
	for i, p := range papers {
		files[i] = p.Filename
	}
	sort.Strings(files)

	return job.Result{
		Sources:          review.Sources(rows),
		Summary:          summary,
		LiteratureReview: rv.Text,
		ReviewMetadata:   rv.Metadata,
		SourceFiles:      files,
		Citations:        citations,
	}, nil
}

// avoidReserved renames source PDFs whose names collide with a generated
// artifact.
func avoidReserved(papers []types.Paper) error {
	taken := make(map[string]bool, len(papers))
	for _, p := range papers {
		taken[p.Filename] = true
	}
	for i, p := range papers {
		if !reserved[p.Filename] {
			continue
		}
		stem := strings.TrimSuffix(p.Filename, filepath.Ext(p.Filename)) + "_source"
		name := stem + ".pdf"
		for n := 2; taken[name]; n++ {
			name = stem + "_" + strconv.Itoa(n) + ".pdf"
		}
		taken[name] = true
		dest := filepath.Join(filepath.Dir(p.PDFPath), name)
		if err := os.Rename(p.PDFPath, dest); err != nil {
			return fmt.Errorf("renaming %s: %w", p.Filename, err)
		}
		papers[i].Filename, papers[i].PDFPath = name, dest
	}
	return nil
}

// RetainedName is the file name a job's source PDF is kept under in the
// papers directory, so jobs never overwrite each other's sources.
func RetainedName(jobID, filename string) string {
	return jobID + "_" + filename
}

// retain copies source PDFs into PapersDir and returns the retained names
// in sorted order. Failures are logged only.
func (r *Runner) retain(id string, papers []types.Paper, log *slog.Logger) []string {
	if r.PapersDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.PapersDir, 0o755); err != nil {
		log.Warn("creating papers directory failed", "error", err)
		return nil
	}
	var kept []string
	for _, p := range papers {
		name := RetainedName(id, p.Filename)
		if err := copyFile(p.PDFPath, filepath.Join(r.PapersDir, name)); err != nil {
			log.Warn("retaining source PDF failed", "file", p.Filename, "error", err)
			continue
		}
		kept = append(kept, name)
	}
	sort.Strings(kept)
	return kept
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// store writes the job's artifacts and returns name → key.
func (r *Runner) store(ctx context.Context, id string, res job.Result, rows []types.Quote, papers []types.Paper) (map[string]string, error) {
	var csvBuf bytes.Buffer
	if err := quotes.WriteCSV(&csvBuf, rows, true); err != nil {
		return nil, err
	}
	cites, err := json.MarshalIndent(res.Citations, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding citations: %w", err)
	}

	var pdfBuf bytes.Buffer
	if err := review.RenderPDF(&pdfBuf, res.LiteratureReview); err != nil {
		return nil, err
	}

	docs := map[string][]byte{
		ArtifactReview:    []byte(res.LiteratureReview),
		ArtifactSummary:   []byte(res.Summary),
		ArtifactQuotes:    csvBuf.Bytes(),
		ArtifactCitations: cites,
		ArtifactPaper:     pdfBuf.Bytes(),
	}
	arts := make(map[string]string, len(docs)+len(papers))
	for name, body := range docs {
		key := artifact.Key(id, name)
		if err := r.Artifacts.Put(ctx, key, bytes.NewReader(body), int64(len(body)), artifact.ContentType(name)); err != nil {
			return nil, fmt.Errorf("storing %s: %w", name, err)
		}
		arts[name] = key
	}
	for _, p := range papers {
		if err := r.putFile(ctx, artifact.Key(id, p.Filename), p.PDFPath); err != nil {
			return nil, fmt.Errorf("storing %s: %w", p.Filename, err)
		}
		arts[p.Filename] = artifact.Key(id, p.Filename)
	}
	return arts, nil
}

func (r *Runner) putFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return r.Artifacts.Put(ctx, key, f, st.Size(), artifact.ContentType(path))
}
