// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

// semanticAPIBase is the Semantic Scholar Graph API root. Declared as a var
// so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1"

// DefaultFields is the metadata requested from Semantic Scholar.
var DefaultFields = []string{
	"title", "abstract", "openAccessPdf", "venue", "year", "authors",
	"externalIds", "citationCount", "influentialCitationCount",
}

const (
	semanticDefaultLimit = 20
	semanticMaxLimit     = 100
)

// Client is the Semantic Scholar search client. It implements Backend.
type Client struct {
	fetcher

	// APIKey is sent as x-api-key when set.
	APIKey string

	// Limit is used when a Request leaves Limit zero.
	Limit int
}

// NewClient returns a Semantic Scholar client using opts.
func NewClient(opts Options, apiKey string) *Client {
	return &Client{fetcher: newFetcher(opts), APIKey: apiKey}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return types.SourceSemanticScholar }

// Search runs a paper search. Cache hits return without a network call;
// HTTP 429 is retried with increasing delay; 404 yields StatusNotFound; any
// other failure yields StatusError.
func (c *Client) Search(ctx context.Context, req Request) Result {
	q := req.normalizedQuery()
	if q == "" {
		return Result{Papers: []types.PaperMetadata{}, Status: StatusError, Detail: "empty Semantic Scholar query"}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = c.Limit
	}
	if limit <= 0 {
		limit = semanticDefaultLimit
	}
	limit = min(max(limit, 1), semanticMaxLimit)

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(limit)},
		"fields": {fieldList(req.Fields)},
	}
	if yr := req.yearRange(); yr != "" {
		params.Set("year", yr)
	}
	if req.OpenAccess {
		params.Set("openAccessPdf", "")
	}

	res := c.get(ctx, c.Name(), semanticAPIBase+"/paper/search", params, c.header(), parseSemanticSearch)
	if res.OK() && req.OpenAccess {
		res.Papers = withPDF(res.Papers)
	}
	return res
}

// GetByID looks up a single paper. DOIs ("10.x/...", "doi:...") and arXiv
// IDs ("2301.07041", "arXiv:2301.07041") use their own lookup paths; any
// other string is treated as a Semantic Scholar paper ID.
func (c *Client) GetByID(ctx context.Context, id string) Result {
	path := lookupPath(id)
	if path == "" {
		return Result{Papers: []types.PaperMetadata{}, Status: StatusError, Detail: "empty paper identifier"}
	}
	params := url.Values{"fields": {fieldList(nil)}}
	return c.get(ctx, c.Name(), semanticAPIBase+"/paper/"+escapePaperPath(path), params, c.header(), parseSemanticPaper)
}

// GetByDOI looks up a paper by DOI.
func (c *Client) GetByDOI(ctx context.Context, doi string) Result {
	return c.GetByID(ctx, "DOI:"+strings.TrimPrefix(strings.TrimPrefix(doi, "doi:"), "DOI:"))
}

// GetByArxiv looks up a paper by arXiv ID.
func (c *Client) GetByArxiv(ctx context.Context, arxivID string) Result {
	return c.GetByID(ctx, "ARXIV:"+stripArxivPrefix(arxivID))
}

// SearchForResearch returns up to maxPapers open-access papers with a PDF,
// most cited first. It over-fetches three times maxPapers (at most 100) to
// leave room for filtering.
func (c *Client) SearchForResearch(ctx context.Context, prompt string, maxPapers int) Result {
	if maxPapers <= 0 {
		maxPapers = 10
	}
	res := c.Search(ctx, Request{Query: prompt, OpenAccess: true, Limit: min(maxPapers*3, semanticMaxLimit)})
	if !res.OK() {
		return res
	}
	SortByCitations(res.Papers)
	if len(res.Papers) > maxPapers {
		res.Papers = res.Papers[:maxPapers]
	}
	return res
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.APIKey != "" {
		h.Set("x-api-key", c.APIKey)
	}
	return h
}

var (
	doiIDPattern   = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	arxivIDPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
)

// lookupPath maps a user-supplied identifier to the Semantic Scholar
// paper path segment.
func lookupPath(id string) string {
	id = strings.TrimSpace(id)
	lower := strings.ToLower(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(lower, "doi:"):
		return "DOI:" + id[len("doi:"):]
	case strings.HasPrefix(lower, "arxiv:"):
		return "ARXIV:" + id[len("arxiv:"):]
	case doiIDPattern.MatchString(id):
		return "DOI:" + id
	case arxivIDPattern.MatchString(id):
		return "ARXIV:" + id
	default:
		return id
	}
}

// escapePaperPath escapes a lookup path while keeping DOI slashes literal.
func escapePaperPath(p string) string {
	return strings.ReplaceAll(url.PathEscape(p), "%2F", "/")
}

func stripArxivPrefix(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(strings.ToLower(id), "arxiv:") {
		return id[len("arxiv:"):]
	}
	return id
}

// fieldList returns a sorted, comma-joined field list so equivalent field
// sets share a cache signature.
func fieldList(fields []string) string {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	fs := append([]string(nil), fields...)
	sort.Strings(fs)
	return strings.Join(fs, ",")
}

// withPDF keeps only papers with an open-access PDF URL.
func withPDF(papers []types.PaperMetadata) []types.PaperMetadata {
	out := papers[:0:0]
	for _, p := range papers {
		if p.PDFURL != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSemanticSearch(body []byte) ([]types.PaperMetadata, error) {
	var sr semanticResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, err
	}
	papers := make([]types.PaperMetadata, 0, len(sr.Data))
	for _, p := range sr.Data {
		papers = append(papers, p.toMetadata())
	}
	return papers, nil
}

func parseSemanticPaper(body []byte) ([]types.PaperMetadata, error) {
	var p semanticPaper
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p.PaperID == "" && p.Title == "" {
		return nil, fmt.Errorf("response has no paper")
	}
	return []types.PaperMetadata{p.toMetadata()}, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	Abstract      string              `json:"abstract"`
	Year          int                 `json:"year"`
	Venue         string              `json:"venue"`
	Authors       []semanticAuthor    `json:"authors"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
	CitationCount int                 `json:"citationCount"`
	OpenAccessPDF *semanticPDF        `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI      string `json:"DOI"`
	ArXiv    string `json:"ArXiv"`
	CorpusID int    `json:"CorpusId"`
}

type semanticPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (p semanticPaper) toMetadata() types.PaperMetadata {
	m := types.PaperMetadata{
		PaperID:       p.PaperID,
		Title:         strings.TrimSpace(p.Title),
		Abstract:      p.Abstract,
		Year:          p.Year,
		Venue:         p.Venue,
		DOI:           p.ExternalIDs.DOI,
		ArxivID:       p.ExternalIDs.ArXiv,
		CitationCount: p.CitationCount,
		Source:        types.SourceSemanticScholar,
	}
	for _, a := range p.Authors {
		m.Authors = append(m.Authors, a.Name)
	}
	if p.OpenAccessPDF != nil && p.OpenAccessPDF.URL != "" {
		m.PDFURL = p.OpenAccessPDF.URL
		m.IsOpenAccess = true
	}
	return m
}
