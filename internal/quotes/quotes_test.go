// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quotes

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/convert"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

// fakeLLM answers each request with respond and records prompts.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []llm.Request
	respond func(req llm.Request) (string, error)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeConverter returns the configured pages for every PDF.
type fakeConverter struct {
	pages map[string][]string
	err   error
}

func (c fakeConverter) Convert(_ context.Context, path string) (convert.Document, error) {
	if c.err != nil {
		return convert.Document{}, c.err
	}
	return convert.Document{Pages: c.pages[filepath.Base(path)]}, nil
}

func writePDF(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 "+body), 0o644))
	return p
}

func TestChunkPages(t *testing.T) {
	pages := []string{strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)}
	chunks := ChunkPages(pages, 110)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageStart)
	assert.Equal(t, 2, chunks[0].PageEnd)
	assert.Contains(t, chunks[0].Text, "[PAGE 1]")
	assert.Contains(t, chunks[0].Text, "[PAGE 2]")
	assert.Equal(t, 3, chunks[1].PageStart)
	assert.Equal(t, 3, chunks[1].PageEnd)

	big := ChunkPages([]string{strings.Repeat("x", 500)}, 100)
	require.Len(t, big, 1)
	assert.Empty(t, ChunkPages(nil, 100))
}

func TestFindQuotePage(t *testing.T) {
	long := strings.Repeat("evidence words ", 10)
	pages := []string{
		"Intro text.",
		"We find that\n  attention   is all you need.",
		"Results: " + long + "| column footer",
	}

	p, ok := FindQuotePage("attention is all you need", pages)
	require.True(t, ok)
	assert.Equal(t, 2, p)

	p, ok = FindQuotePage(long+"and a tail the PDF layout split off", pages)
	require.True(t, ok, "prefix match for long quotes")
	assert.Equal(t, 3, p)

	_, ok = FindQuotePage("short quote not present", pages)
	assert.False(t, ok)
	_, ok = FindQuotePage("   ", pages)
	assert.False(t, ok)
}

func TestDedupeAndMerge(t *testing.T) {
	qs := Dedupe([]types.Quote{
		{Text: "Same  Quote"}, {Text: "same quote"}, {Text: ""}, {Text: "other"},
	})
	require.Len(t, qs, 2)
	assert.Equal(t, "Same  Quote", qs[0].Text)

	merged := Merge(
		[]types.Quote{{Text: "b2", Page: 2, Filename: "b.pdf"}, {Text: "shared", Page: 9, Filename: "b.pdf"}},
		[]types.Quote{{Text: "a1", Page: 1, Filename: "a.pdf"}, {Text: "Shared", Page: 3, Filename: "a.pdf"}},
	)
	require.Len(t, merged, 3)
	assert.Equal(t, "a1", merged[0].Text)
	assert.Equal(t, "Shared", merged[1].Text)
	assert.Equal(t, "b2", merged[2].Text)
}

func TestCSVRoundTrip(t *testing.T) {
	in := []types.Quote{
		{Text: `He said, "yes"`, Page: 3, Filename: "a.pdf", Idea: "Agreement was reached."},
		{Text: "line\nbreak", Page: 1, Filename: "b.pdf"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in, true))
	assert.True(t, strings.HasPrefix(buf.String(), "quote,page_number,filename,idea\n"))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, in[:1], false))
	assert.True(t, strings.HasPrefix(buf.String(), "quote,page_number,filename\n"))
}

func TestReadCSVSkipsBadRows(t *testing.T) {
	out, err := ReadCSV(strings.NewReader("quote,page_number,filename\nok,2,a.pdf\nbad,x,a.pdf\n,1,a.pdf\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Text)

	_, err = ReadCSV(strings.NewReader("quote,filename\n"))
	assert.Error(t, err)
}

func newTestExtractor(client llm.Client, conv convert.Converter, cacheDir string) *Extractor {
	cfg := types.DefaultConfig().Pipeline
	cfg.QuoteCacheDir = cacheDir
	cfg.ChunkChars = 200
	return NewExtractor(client, conv, "fast", cfg, nil)
}

func TestExtractPDFVerifiesAndSorts(t *testing.T) {
	pages := []string{
		"Deep learning improves recall. It also costs energy.",
		"Sparse models reduce compute. Dense models are simpler.",
	}
	client := &fakeLLM{respond: func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "[PAGE 1]"):
			return "```json\n" + `{"quotes":[
				{"page":1,"quote":"It also costs energy."},
				{"page":1,"quote":"Deep learning improves recall."},
				{"page":1,"quote":"A hallucinated sentence."}
			]}` + "\n```", nil
		default:
			return `{"quotes":[{"page":null,"quote":"Sparse models reduce compute."},{"quote":"deep learning improves  RECALL."}]}`, nil
		}
	}}
	dir := t.TempDir()
	path := writePDF(t, dir, "paper.pdf", "x")
	e := newTestExtractor(client, fakeConverter{pages: map[string][]string{"paper.pdf": pages}}, "")
	e.ChunkChars = 70

	qs, err := e.ExtractPDF(context.Background(), path, "Does deep learning help?")
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, types.Quote{Text: "Deep learning improves recall.", Page: 1, Filename: "paper.pdf"}, qs[0])
	assert.Equal(t, "It also costs energy.", qs[1].Text)
	assert.Equal(t, types.Quote{Text: "Sparse models reduce compute.", Page: 2, Filename: "paper.pdf"}, qs[2])

	require.Equal(t, 2, client.calls())
	assert.Equal(t, "fast", client.prompts[0].Model)
	assert.Contains(t, client.prompts[0].Prompt, "extract up to 7 verbatim quotes")
	assert.Contains(t, client.prompts[0].Prompt, "(pages 1-1)")
}

func TestExtractPDFMalformedChunkYieldsNothing(t *testing.T) {
	client := &fakeLLM{respond: func(llm.Request) (string, error) { return "I cannot help with that.", nil }}
	dir := t.TempDir()
	path := writePDF(t, dir, "p.pdf", "x")
	e := newTestExtractor(client, fakeConverter{pages: map[string][]string{"p.pdf": {"text"}}}, "")

	qs, err := e.ExtractPDF(context.Background(), path, "q")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestExtractPDFCapsQuotes(t *testing.T) {
	var page strings.Builder
	var items []string
	for i := range 20 {
		s := "Sentence number " + strings.Repeat("x", i+1) + "."
		page.WriteString(s + " ")
		items = append(items, `{"page":1,"quote":"`+s+`"}`)
	}
	client := &fakeLLM{respond: func(llm.Request) (string, error) {
		return `{"quotes":[` + strings.Join(items, ",") + `]}`, nil
	}}
	dir := t.TempDir()
	path := writePDF(t, dir, "p.pdf", "x")
	e := newTestExtractor(client, fakeConverter{pages: map[string][]string{"p.pdf": {page.String()}}}, "")
	e.ChunkChars = 10000

	qs, err := e.ExtractPDF(context.Background(), path, "q")
	require.NoError(t, err)
	require.Len(t, qs, 15)
	assert.Greater(t, len(qs[0].Text), len(qs[14].Text), "longer quotes first within a page")
}

func TestExtractAllUsesCache(t *testing.T) {
	client := &fakeLLM{respond: func(llm.Request) (string, error) {
		return `{"quotes":[{"page":1,"quote":"Evidence sentence."}]}`, nil
	}}
	pdfDir, cacheDir := t.TempDir(), t.TempDir()
	a := writePDF(t, pdfDir, "a.pdf", "one")
	b := writePDF(t, pdfDir, "b.pdf", "two")
	conv := fakeConverter{pages: map[string][]string{
		"a.pdf": {"Evidence sentence. More."},
		"b.pdf": {"Nothing relevant here."},
	}}
	e := newTestExtractor(client, conv, cacheDir)

	rows, summary, err := e.ExtractAll(context.Background(), []string{b, a}, "q")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a.pdf", rows[0].Filename)
	assert.Equal(t, BatchSummary{Extracted: 2}, summary)
	first := client.calls()

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	rows2, summary2, err := e.ExtractAll(context.Background(), []string{a, b}, "q")
	require.NoError(t, err)
	assert.Equal(t, rows, rows2)
	assert.Equal(t, BatchSummary{Cached: 2}, summary2)
	assert.Equal(t, first, client.calls(), "cache hit makes no LLM calls")

	_, summary3, err := e.ExtractAll(context.Background(), []string{a}, "another question")
	require.NoError(t, err)
	assert.Equal(t, 1, summary3.Extracted, "question is part of the cache key")
}

func TestExtractAllCountsFailures(t *testing.T) {
	client := &fakeLLM{respond: func(llm.Request) (string, error) { return "", errors.New("provider down") }}
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "x")
	e := newTestExtractor(client, fakeConverter{pages: map[string][]string{"a.pdf": {"text"}}}, "")

	rows, summary, err := e.ExtractAll(context.Background(), []string{a}, "q")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Total())
}

type memStore struct {
	mu sync.Mutex
	m  map[string]cache.Entry
}

func (s *memStore) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	return e, ok, nil
}

func (s *memStore) Put(_ context.Context, key string, e cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = e
	return nil
}

func TestSynthesize(t *testing.T) {
	client := &fakeLLM{respond: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "broken") {
			return "", errors.New("boom")
		}
		return "  The quote makes a claim.\nSecond line ignored.", nil
	}}
	store := &memStore{m: map[string]cache.Entry{}}
	var progress, totals []int
	var mu sync.Mutex
	s := &Synthesizer{LLM: client, Model: "fast", Concurrency: 4, Cache: store, Progress: func(done, total int) {
		mu.Lock()
		progress = append(progress, done)
		totals = append(totals, total)
		mu.Unlock()
	}}

	qs := []types.Quote{{Text: "A claim."}, {Text: "a   CLAIM."}, {Text: "broken quote"}}
	require.NoError(t, s.Synthesize(context.Background(), qs, ""))
	assert.Equal(t, "The quote makes a claim.", qs[0].Idea)
	assert.Equal(t, "The quote makes a claim.", qs[1].Idea)
	assert.Empty(t, qs[2].Idea)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)
	assert.Equal(t, []int{3, 3, 3}, totals)
	assert.Contains(t, client.prompts[0].Prompt, "N/A")

	calls := client.calls()
	again := []types.Quote{{Text: "A  claim."}}
	progress, totals = nil, nil
	require.NoError(t, s.Synthesize(context.Background(), again, "q"))
	assert.Equal(t, "The quote makes a claim.", again[0].Idea)
	assert.Equal(t, []int{1}, totals)
	assert.Equal(t, calls, client.calls(), "cached by normalized quote")
}

func TestSynthesizeCancelled(t *testing.T) {
	client := &fakeLLM{respond: func(llm.Request) (string, error) { return "", context.Canceled }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Synthesizer{LLM: client, Concurrency: 1}
	err := s.Synthesize(ctx, []types.Quote{{Text: "x"}}, "q")
	assert.ErrorIs(t, err, context.Canceled)
}
