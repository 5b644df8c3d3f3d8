// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quotes extracts verbatim quotes from PDFs with chunked LLM calls,
// verifies them against the page text, and synthesizes one idea per quote.
package quotes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/veritas/internal/convert"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

const extractSystem = "You extract evidence from documents for academic research.\n" +
	"Only return quotes that appear EXACTLY in the provided text. No paraphrase.\n" +
	"Prefer quotes that directly answer the research question or provide strong evidence.\n" +
	"Keep quotes short and self-contained (1-2 sentences)."

const extractPrompt = `RESEARCH QUESTION:
%s

TASK:
From the text below (pages %d-%d), extract up to %d verbatim quotes that directly help answer the research question.
Each quote should be a sentence or two (short contiguous snippet).

OUTPUT FORMAT:
Return ONLY valid JSON:
{
  "quotes": [
    {"page": 12, "quote": "verbatim text here"}
  ]
}

TEXT:
%s`

var chunkSchema = llm.MustSchema(`{
  "type": "object",
  "required": ["quotes"],
  "properties": {
    "quotes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["quote"],
        "properties": {
          "page": {"type": ["integer", "null"]},
          "quote": {"type": "string"}
        }
      }
    }
  }
}`)

type chunkResponse struct {
	Quotes []struct {
		Page  *int   `json:"page"`
		Quote string `json:"quote"`
	} `json:"quotes"`
}

// Extractor pulls verified quotes out of PDFs.
type Extractor struct {
	LLM       llm.Client
	Converter convert.Converter

	// Model is passed on every request; empty uses the client default.
	Model string

	MaxQuotes   int
	ChunkChars  int
	Concurrency int

	// CacheDir holds one JSON result per (PDF, question) pair. Empty
	// disables the cache.
	CacheDir string

	Logger *slog.Logger
}

// NewExtractor returns an Extractor configured from cfg.
func NewExtractor(client llm.Client, conv convert.Converter, model string, cfg types.PipelineConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{
		LLM:         client,
		Converter:   conv,
		Model:       model,
		MaxQuotes:   cfg.MaxQuotesPerPDF,
		ChunkChars:  cfg.ChunkChars,
		Concurrency: cfg.ExtractConcurrency,
		CacheDir:    cfg.QuoteCacheDir,
		Logger:      logger,
	}
}

// BatchSummary holds counts from an ExtractAll run.
type BatchSummary struct {
	Extracted int
	Cached    int
	Failed    int
}

// Total returns the number of PDFs processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Cached + s.Failed
}

// ExtractPDF returns up to MaxQuotes verified quotes from one PDF. Chunks
// whose response cannot be parsed contribute no quotes. Quotes that cannot
// be located in the page text are dropped.
func (e *Extractor) ExtractPDF(ctx context.Context, pdfPath, question string) ([]types.Quote, error) {
	doc, err := e.Converter.Convert(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(pdfPath)
	chunks := ChunkPages(doc.Pages, e.ChunkChars)
	if doc.Empty() || len(chunks) == 0 {
		e.Logger.Info("no text content", "file", name)
		return nil, nil
	}

	perChunk := max(3, e.MaxQuotes/len(chunks))
	e.Logger.Debug("extracting quotes", "file", name, "pages", len(doc.Pages), "chunks", len(chunks))

	var candidates []types.Quote
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qs, err := e.extractChunk(ctx, question, ch, perChunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", i+1, name, err)
		}
		candidates = append(candidates, qs...)
	}

	candidates = Dedupe(candidates)
	verified := make([]types.Quote, 0, len(candidates))
	for _, q := range candidates {
		page, ok := FindQuotePage(q.Text, doc.Pages)
		if !ok {
			continue
		}
		verified = append(verified, types.Quote{Text: q.Text, Page: page, Filename: name})
	}
	sortByPage(verified)
	if len(verified) > e.MaxQuotes {
		verified = verified[:e.MaxQuotes]
	}
	e.Logger.Info("verified quotes", "file", name, "candidates", len(candidates), "verified", len(verified))
	return verified, nil
}

// extractChunk returns the quotes the model proposes for one chunk. Only
// transport errors are returned; malformed output yields no quotes.
func (e *Extractor) extractChunk(ctx context.Context, question string, ch Chunk, limit int) ([]types.Quote, error) {
	prompt := fmt.Sprintf(extractPrompt, question, ch.PageStart, ch.PageEnd, limit, convert.Sanitize(ch.Text))
	raw, err := e.LLM.Complete(ctx, llm.Request{Model: e.Model, System: extractSystem, Prompt: prompt, JSON: true})
	if err != nil {
		return nil, err
	}

	var resp chunkResponse
	if err := chunkSchema.Decode(raw, &resp); err != nil {
		e.Logger.Warn("discarding chunk response", "pages", fmt.Sprintf("%d-%d", ch.PageStart, ch.PageEnd), "error", err)
		return nil, nil
	}
	out := make([]types.Quote, 0, len(resp.Quotes))
	for _, item := range resp.Quotes {
		text := strings.TrimSpace(item.Quote)
		if text == "" {
			continue
		}
		q := types.Quote{Text: text}
		if item.Page != nil {
			q.Page = *item.Page
		}
		out = append(out, q)
	}
	return out, nil
}

// ExtractAll extracts quotes from every PDF, reusing cached results, and
// returns the rows sorted by filename then page. A PDF that fails is logged
// and counted; the error is returned only when ctx is done.
func (e *Extractor) ExtractAll(ctx context.Context, pdfPaths []string, question string) ([]types.Quote, BatchSummary, error) {
	var (
		mu      sync.Mutex
		rows    []types.Quote
		summary BatchSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Concurrency))
	for _, path := range pdfPaths {
		g.Go(func() error {
			qs, cached, err := e.extractCached(gctx, path, question)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				e.Logger.Warn("quote extraction failed", "file", filepath.Base(path), "error", err)
				summary.Failed++
			case cached:
				summary.Cached++
			default:
				summary.Extracted++
			}
			rows = append(rows, qs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}
	return Merge(rows), summary, nil
}

func (e *Extractor) extractCached(ctx context.Context, pdfPath, question string) ([]types.Quote, bool, error) {
	name := filepath.Base(pdfPath)
	cachePath, err := e.cachePath(pdfPath, question)
	if err != nil {
		return nil, false, err
	}
	if cachePath != "" {
		if qs, ok := readCache(cachePath, name); ok {
			e.Logger.Info("quote cache hit", "file", name)
			return qs, true, nil
		}
	}

	qs, err := e.ExtractPDF(ctx, pdfPath, question)
	if err != nil {
		return nil, false, err
	}
	if cachePath != "" {
		if err := writeCache(cachePath, qs); err != nil {
			e.Logger.Warn("quote cache write failed", "file", name, "error", err)
		}
	}
	return qs, false, nil
}

// cacheEntry is the on-disk form of one verified quote.
type cacheEntry struct {
	Page  int    `json:"page"`
	Quote string `json:"quote"`
}

// cachePath returns CacheDir/{sha256(pdf)}_{sha256(question)}.json, or ""
// when caching is disabled.
func (e *Extractor) cachePath(pdfPath, question string) (string, error) {
	if e.CacheDir == "" {
		return "", nil
	}
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", pdfPath, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", pdfPath, err)
	}
	qh := sha256.Sum256([]byte(question))
	return filepath.Join(e.CacheDir, hex.EncodeToString(h.Sum(nil))+"_"+hex.EncodeToString(qh[:])+".json"), nil
}

func readCache(path, filename string) ([]types.Quote, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entries []cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	qs := make([]types.Quote, 0, len(entries))
	for _, c := range entries {
		qs = append(qs, types.Quote{Text: c.Quote, Page: c.Page, Filename: filename})
	}
	return qs, true
}

func writeCache(path string, qs []types.Quote) error {
	entries := make([]cacheEntry, 0, len(qs))
	for _, q := range qs {
		entries = append(entries, cacheEntry{Page: q.Page, Quote: q.Text})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
