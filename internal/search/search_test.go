// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/veritas/pkg/types"
)

// --- mock backend ---

type mockBackend struct {
	name string
	res  Result
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(_ context.Context, _ Request) Result { return m.res }

func TestSearchAllMergesAndDeduplicates(t *testing.T) {
	arxiv := &mockBackend{name: "arxiv", res: Result{Status: StatusOK, Papers: []types.PaperMetadata{
		{Title: "Deep Learning", ArxivID: "1234.5678", Source: "arxiv", PDFURL: "https://arxiv.org/pdf/1234.5678"},
		{Title: "Only On Arxiv", ArxivID: "1111.2222", Source: "arxiv"},
	}}}
	s2 := &mockBackend{name: "semantic_scholar", res: Result{Status: StatusOK, Cached: true, Papers: []types.PaperMetadata{
		{Title: "Deep learning.", ArxivID: "1234.5678", DOI: "10.1/dl", CitationCount: 40, Source: "semantic_scholar"},
	}}}
	oa := &mockBackend{name: "openalex", res: Result{Status: StatusRateLimited, Papers: []types.PaperMetadata{}, Detail: "slow down"}}

	out := SearchAll(context.Background(), []Backend{arxiv, s2, oa}, Request{Query: "deep learning"}, nil)

	if len(out.Papers) != 2 || out.DupsRemoved != 1 {
		t.Fatalf("papers = %d removed = %d", len(out.Papers), out.DupsRemoved)
	}
	merged := out.Papers[0]
	if merged.DOI != "10.1/dl" || merged.CitationCount != 40 || merged.Source != "arxiv,semantic_scholar" {
		t.Errorf("merged = %+v", merged)
	}
	if out.PerBackend["openalex"].Status != StatusRateLimited || !out.PerBackend["semantic_scholar"].Cached {
		t.Errorf("per backend = %+v", out.PerBackend)
	}
	if out.PerBackend["arxiv"].Papers != nil {
		t.Error("per-backend results should not carry papers")
	}
}

func TestDeduplicateByTitle(t *testing.T) {
	papers := []types.PaperMetadata{
		{Title: "A Study: of Things!"},
		{Title: "a study of things"},
		{Title: "Another"},
	}
	deduped, removed := deduplicate(papers)
	if removed != 1 || len(deduped) != 2 {
		t.Errorf("deduped = %d removed = %d", len(deduped), removed)
	}
}

func TestSortByCitationsStable(t *testing.T) {
	papers := []types.PaperMetadata{
		{Title: "low", CitationCount: 1},
		{Title: "high", CitationCount: 9},
		{Title: "low2", CitationCount: 1},
	}
	SortByCitations(papers)
	if papers[0].Title != "high" || papers[1].Title != "low" || papers[2].Title != "low2" {
		t.Errorf("order = %v", papers)
	}
}

func TestRequestYearRange(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{YearFrom: 2020, YearTo: 2023}, "2020-2023"},
		{Request{YearFrom: 2020}, "2020-"},
		{Request{YearTo: 2023}, "-2023"},
		{Request{}, ""},
	}
	for _, tt := range tests {
		if got := tt.req.yearRange(); got != tt.want {
			t.Errorf("yearRange(%+v) = %q, want %q", tt.req, got, tt.want)
		}
	}
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable([]types.PaperMetadata{{Title: "Paper", Authors: []string{"A", "B"}, Year: 2020, PDFURL: "x", Source: "arxiv"}}, &buf)
	out := buf.String()
	if !strings.Contains(out, "Paper") || !strings.Contains(out, "A et al.") || !strings.Contains(out, "1 results") {
		t.Errorf("table = %q", out)
	}

	buf.Reset()
	FormatTable(nil, &buf)
	if !strings.Contains(buf.String(), "No results") {
		t.Errorf("empty table = %q", buf.String())
	}
}

func TestFormatJSONEmitsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatJSON([]types.PaperMetadata{{Title: "P"}}, &buf); err != nil {
		t.Fatal(err)
	}
	var got []types.PaperMetadata
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || len(got) != 1 {
		t.Errorf("json = %q err = %v", buf.String(), err)
	}
}

func TestFormatCSL(t *testing.T) {
	var buf bytes.Buffer
	err := FormatCSL([]types.PaperMetadata{{ArxivID: "2301.07041", Title: "T", Authors: []string{"Grace Brewster Hopper", "Plato"}, Year: 2023}}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"id: \"2301.07041\"", "family: Hopper", "given: Grace Brewster", "literal: Plato", "- 2023"} {
		if !strings.Contains(out, want) {
			t.Errorf("csl output missing %q:\n%s", want, out)
		}
	}
}

func TestQueryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	req := Request{Query: "memory  consolidation", YearFrom: 2018, OpenAccess: true}
	out := Output{
		Papers:      []types.PaperMetadata{{Title: "Sleep", Year: 2019}},
		DupsRemoved: 2,
		PerBackend:  map[string]Result{"arxiv": {Status: StatusOK}, "openalex": {Status: StatusError}},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := WriteQueryFile(path, NewQueryFile(req, out, now)); err != nil {
		t.Fatal(err)
	}
	qf, err := ReadQueryFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if qf.Query.Text != "memory consolidation" || qf.Summary.DuplicatesRemoved != 2 || !qf.Summary.Timestamp.Equal(now) {
		t.Errorf("query file = %+v", qf)
	}
	if qf.Summary.Backends["openalex"] != StatusError {
		t.Errorf("backends = %v", qf.Summary.Backends)
	}
	back := qf.Query.ToRequest()
	if back.YearFrom != 2018 || !back.OpenAccess || len(qf.Papers) != 1 {
		t.Errorf("request = %+v", back)
	}
}
