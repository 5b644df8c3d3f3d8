// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries academic paper APIs (Semantic Scholar, arXiv,
// OpenAlex) through a shared retrying, caching fetch core. Upstream
// failures never surface as Go errors: every call returns a Result whose
// Status says what happened.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/veritas/pkg/types"
)

// Status classifies the outcome of a search call.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNotFound    Status = "not_found"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
)

// Result is the outcome of a search or lookup. Papers is empty unless
// Status is StatusOK.
type Result struct {
	Papers []types.PaperMetadata `json:"papers"`
	Status Status                `json:"status"`

	// Cached is true when the papers came from the response cache.
	Cached bool `json:"cached"`

	// Detail describes a non-OK status for logs and users.
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

// Request is a structured search. Zero fields are omitted from the upstream
// call.
type Request struct {
	Query string

	// YearFrom and YearTo bound the publication year, inclusive.
	YearFrom int
	YearTo   int

	// OpenAccess restricts results to papers with a free PDF.
	OpenAccess bool

	// Limit caps the number of results; zero uses the backend default.
	Limit int

	// Fields overrides the metadata fields requested where supported.
	Fields []string
}

// yearRange returns a Semantic Scholar style year filter ("2020-2023",
// "2020-", "-2023").
func (r Request) yearRange() string {
	switch {
	case r.YearFrom > 0 && r.YearTo > 0:
		return fmt.Sprintf("%d-%d", r.YearFrom, r.YearTo)
	case r.YearFrom > 0:
		return fmt.Sprintf("%d-", r.YearFrom)
	case r.YearTo > 0:
		return fmt.Sprintf("-%d", r.YearTo)
	default:
		return ""
	}
}

// normalizedQuery collapses whitespace in the query text.
func (r Request) normalizedQuery() string {
	return strings.Join(strings.Fields(r.Query), " ")
}

// Backend searches a single academic API.
type Backend interface {
	Name() string
	Search(ctx context.Context, req Request) Result
}

// Output is the merged result of a fan-out across backends.
type Output struct {
	Papers      []types.PaperMetadata `json:"papers"`
	DupsRemoved int                   `json:"duplicates_removed"`

	// PerBackend holds each backend's Result with its papers stripped.
	PerBackend map[string]Result `json:"per_backend"`
}

// SearchAll queries every backend concurrently and deduplicates the merged
// papers, keeping backend order stable (first backend first). Backends
// never fail the fan-out; their statuses are reported in PerBackend.
func SearchAll(ctx context.Context, backends []Backend, req Request, logger *slog.Logger) Output {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	results := make([]Result, len(backends))
	var g errgroup.Group
	for i, b := range backends {
		g.Go(func() error {
			results[i] = b.Search(ctx, req)
			return nil
		})
	}
	g.Wait()

	out := Output{PerBackend: make(map[string]Result, len(backends))}
	var all []types.PaperMetadata
	for i, b := range backends {
		r := results[i]
		if !r.OK() {
			logger.Warn("search backend returned no results", "backend", b.Name(), "status", r.Status, "detail", r.Detail)
		} else {
			logger.Info("search backend returned results", "backend", b.Name(), "count", len(r.Papers), "cached", r.Cached)
		}
		all = append(all, r.Papers...)
		out.PerBackend[b.Name()] = Result{Status: r.Status, Cached: r.Cached, Detail: r.Detail}
	}

	out.Papers, out.DupsRemoved = deduplicate(all)
	return out
}

// deduplicate merges papers that share an identifier or normalized title.
func deduplicate(papers []types.PaperMetadata) ([]types.PaperMetadata, int) {
	seen := make(map[string]int)
	var deduped []types.PaperMetadata
	removed := 0

	for _, p := range papers {
		keys := dedupKeys(p)

		idx, dup := -1, false
		for _, k := range keys {
			if i, ok := seen[k]; ok {
				idx, dup = i, true
				break
			}
		}
		if dup {
			mergeInto(&deduped[idx], p)
			removed++
		} else {
			idx = len(deduped)
			deduped = append(deduped, p)
		}
		for _, k := range dedupKeys(deduped[idx]) {
			seen[k] = idx
		}
	}
	return deduped, removed
}

func dedupKeys(p types.PaperMetadata) []string {
	var keys []string
	if p.ArxivID != "" {
		keys = append(keys, "arxiv:"+strings.ToLower(p.ArxivID))
	}
	if p.DOI != "" {
		keys = append(keys, "doi:"+strings.ToLower(p.DOI))
	}
	if t := normalizeTitle(p.Title); t != "" {
		keys = append(keys, "title:"+t)
	}
	return keys
}

// mergeInto fills empty fields of dst from src.
func mergeInto(dst *types.PaperMetadata, src types.PaperMetadata) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Abstract == "" {
		dst.Abstract = src.Abstract
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if dst.ArxivID == "" {
		dst.ArxivID = src.ArxivID
	}
	if dst.PDFURL == "" {
		dst.PDFURL = src.PDFURL
	}
	if src.CitationCount > dst.CitationCount {
		dst.CitationCount = src.CitationCount
	}
	dst.IsOpenAccess = dst.IsOpenAccess || src.IsOpenAccess
	if src.Source != "" && !strings.Contains(dst.Source, src.Source) {
		dst.Source = dst.Source + "," + src.Source
	}
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SortByCitations orders papers by citation count, highest first.
func SortByCitations(papers []types.PaperMetadata) {
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].CitationCount > papers[j].CitationCount
	})
}

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.PaperMetadata, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-6s  %-3s  %s\n",
		"Rank", "Title", "Authors", "Year", "Cites", "PDF", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 116))

	for i, p := range papers {
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		pdf := "no"
		if p.PDFURL != "" {
			pdf = "yes"
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-6d  %-3s  %s\n",
			i+1, truncate(p.Title, 60), formatAuthors(p.Authors), year, p.CitationCount, pdf, p.Source)
	}
	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.PaperMetadata, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
