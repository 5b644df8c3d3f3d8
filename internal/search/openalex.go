// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend queries the OpenAlex API.
type OpenAlexBackend struct {
	fetcher

	// Email is sent as mailto for polite pool access.
	Email  string
	APIKey string

	// Limit is used when a Request leaves Limit zero (default 25).
	Limit int
}

// NewOpenAlexBackend returns an OpenAlex backend using opts.
func NewOpenAlexBackend(opts Options, email, apiKey string) *OpenAlexBackend {
	return &OpenAlexBackend{fetcher: newFetcher(opts), Email: email, APIKey: apiKey, Limit: 25}
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return types.SourceOpenAlex }

// Search queries OpenAlex. With OpenAccess set, only is_oa works with a
// resolvable PDF URL are returned.
func (b *OpenAlexBackend) Search(ctx context.Context, req Request) Result {
	q := req.normalizedQuery()
	if q == "" {
		return Result{Papers: []types.PaperMetadata{}, Status: StatusError, Detail: "empty OpenAlex query"}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = b.Limit
	}
	limit = min(max(limit, 1), 200)

	params := url.Values{
		"search":   {q},
		"per_page": {strconv.Itoa(limit)},
		"page":     {"1"},
	}

	var filters []string
	if req.OpenAccess {
		filters = append(filters, "is_oa:true")
	}
	if req.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", req.YearFrom))
	}
	if req.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", req.YearTo))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	var header http.Header
	if b.APIKey != "" {
		header = http.Header{"Authorization": {"Bearer " + b.APIKey}}
	}

	res := b.get(ctx, b.Name(), openAlexSearchBase, params, header, parseOpenAlexWorks)
	if res.OK() && req.OpenAccess {
		res.Papers = withPDF(res.Papers)
	}
	return res
}

func parseOpenAlexWorks(body []byte) ([]types.PaperMetadata, error) {
	var oar openAlexResponse
	if err := json.Unmarshal(body, &oar); err != nil {
		return nil, err
	}

	papers := make([]types.PaperMetadata, 0, len(oar.Results))
	for _, w := range oar.Results {
		p := types.PaperMetadata{
			PaperID:       w.ID,
			Title:         strings.TrimSpace(w.Title),
			Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
			Year:          w.PublicationYear,
			DOI:           strings.TrimPrefix(w.DOI, "https://doi.org/"),
			CitationCount: w.CitedByCount,
			IsOpenAccess:  w.OpenAccess.IsOA,
			PDFURL:        w.pdfURL(),
			Source:        types.SourceOpenAlex,
		}
		if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
			p.Venue = w.PrimaryLocation.Source.DisplayName
		}
		for _, a := range w.Authorships {
			if a.Author.DisplayName != "" {
				p.Authors = append(p.Authors, a.Author.DisplayName)
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// pdfURL prefers best_oa_location, then the first location with a PDF.
func (w openAlexWork) pdfURL() string {
	if w.BestOALocation != nil && w.BestOALocation.PDFURL != "" {
		return w.BestOALocation.PDFURL
	}
	for _, loc := range w.Locations {
		if loc.PDFURL != "" {
			return loc.PDFURL
		}
	}
	return ""
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
	BestOALocation        *openAlexLocation    `json:"best_oa_location"`
	PrimaryLocation       *openAlexLocation    `json:"primary_location"`
	Locations             []openAlexLocation   `json:"locations"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	PDFURL string          `json:"pdf_url"`
	Source *openAlexSource `json:"source"`
}

type openAlexSource struct {
	DisplayName string `json:"display_name"`
}
