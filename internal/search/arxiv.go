// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/veritas/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// arxivPDFBase builds PDF links for entries that omit one.
var arxivPDFBase = "https://arxiv.org/pdf/"

// ArxivBackend queries the arXiv Atom API. Every arXiv paper is open access.
type ArxivBackend struct {
	fetcher

	// Limit is used when a Request leaves Limit zero (default 50).
	Limit int
}

// NewArxivBackend returns an arXiv backend using opts.
func NewArxivBackend(opts Options) *ArxivBackend {
	return &ArxivBackend{fetcher: newFetcher(opts), Limit: 50}
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return types.SourceArxiv }

// Search queries arXiv. Year filters are not supported by the API and are
// applied to the parsed entries instead.
func (b *ArxivBackend) Search(ctx context.Context, req Request) Result {
	q := buildArxivQuery(req.normalizedQuery())
	if q == "" {
		return Result{Papers: []types.PaperMetadata{}, Status: StatusError, Detail: "empty arXiv query"}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = b.Limit
	}
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{
		"search_query": {q},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(limit)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}

	res := b.get(ctx, b.Name(), arxivAPIBase, params, nil, parseArxivFeed)
	if res.OK() && (req.YearFrom > 0 || req.YearTo > 0) {
		res.Papers = filterYears(res.Papers, req.YearFrom, req.YearTo)
	}
	return res
}

// buildArxivQuery passes fielded queries ("ti:...", "all:... AND ...")
// through unchanged and scopes plain text to all fields.
func buildArxivQuery(q string) string {
	if q == "" {
		return ""
	}
	for _, prefix := range []string{"all:", "ti:", "abs:", "au:", "cat:"} {
		if strings.Contains(q, prefix) {
			return q
		}
	}
	return "all:" + q
}

func filterYears(papers []types.PaperMetadata, from, to int) []types.PaperMetadata {
	out := papers[:0:0]
	for _, p := range papers {
		if from > 0 && p.Year > 0 && p.Year < from {
			continue
		}
		if to > 0 && p.Year > to {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseArxivFeed(body []byte) ([]types.PaperMetadata, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, err
	}

	papers := make([]types.PaperMetadata, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		p := types.PaperMetadata{
			PaperID:      arxivID,
			ArxivID:      arxivID,
			Title:        strings.Join(strings.Fields(entry.Title), " "),
			Abstract:     strings.TrimSpace(entry.Summary),
			DOI:          strings.TrimSpace(entry.DOI),
			IsOpenAccess: true,
			Source:       types.SourceArxiv,
		}
		for _, a := range entry.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			p.Year = t.Year()
		}
		for _, l := range entry.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				p.PDFURL = l.Href
				break
			}
		}
		if p.PDFURL == "" {
			p.PDFURL = arxivPDFBase + arxivID
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	DOI       string        `xml:"doi"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
