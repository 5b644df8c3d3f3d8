// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

type openAlexWork struct {
	Title          string            `json:"title"`
	BestOALocation *openAlexLocation `json:"best_oa_location"`
}

type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// resolveOpenAlex looks a DOI up in OpenAlex and returns the open-access PDF
// URL (empty when there is none) and the work title.
func (d *Downloader) resolveOpenAlex(ctx context.Context, doi string) (pdfURL, title string, err error) {
	apiURL := openAlexAPIBase + "https://doi.org/" + doi
	if d.Email != "" {
		apiURL += "?mailto=" + url.QueryEscape(d.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating OpenAlex request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return "", "", fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var w openAlexWork
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return "", "", fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	if w.BestOALocation != nil {
		pdfURL = w.BestOALocation.PDFURL
	}
	return pdfURL, w.Title, nil
}
