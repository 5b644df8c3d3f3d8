// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v2</id>
    <title>Scaling   Laws
      for Retrieval</title>
    <summary>  We study retrieval. </summary>
    <published>2023-01-17T18:00:00Z</published>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
    <link href="http://arxiv.org/abs/2301.07041v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.07041v2" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/1999.00001v1</id>
    <title>Old Paper</title>
    <published>2019-05-01T00:00:00Z</published>
  </entry>
</feed>`

func withArxivBase(t *testing.T, u string) {
	t.Helper()
	old := arxivAPIBase
	arxivAPIBase = u
	t.Cleanup(func() { arxivAPIBase = old })
}

func TestArxivSearchParsesFeed(t *testing.T) {
	var query string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("search_query")
		fmt.Fprint(w, arxivFeedXML)
	}))
	defer ts.Close()
	withArxivBase(t, ts.URL)

	res := NewArxivBackend(testOptions(ts, nil, nil)).Search(context.Background(), Request{Query: "retrieval scaling"})
	if !res.OK() {
		t.Fatalf("status = %q (%s)", res.Status, res.Detail)
	}
	if query != "all:retrieval scaling" {
		t.Errorf("search_query = %q", query)
	}
	if len(res.Papers) != 2 {
		t.Fatalf("papers = %d, want 2", len(res.Papers))
	}
	p := res.Papers[0]
	if p.ArxivID != "2301.07041" || p.Title != "Scaling Laws for Retrieval" || p.Year != 2023 {
		t.Errorf("paper = %+v", p)
	}
	if p.PDFURL != "http://arxiv.org/pdf/2301.07041v2" || !p.IsOpenAccess {
		t.Errorf("pdf = %q", p.PDFURL)
	}
	if len(p.Authors) != 2 || p.Abstract != "We study retrieval." {
		t.Errorf("authors/abstract = %v / %q", p.Authors, p.Abstract)
	}
	if res.Papers[1].PDFURL != "https://arxiv.org/pdf/1999.00001" {
		t.Errorf("fallback pdf = %q", res.Papers[1].PDFURL)
	}
}

func TestArxivYearFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, arxivFeedXML)
	}))
	defer ts.Close()
	withArxivBase(t, ts.URL)

	res := NewArxivBackend(testOptions(ts, nil, nil)).Search(context.Background(), Request{Query: "x", YearFrom: 2020})
	if len(res.Papers) != 1 || res.Papers[0].Year != 2023 {
		t.Errorf("papers = %+v", res.Papers)
	}
}

func TestBuildArxivQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"graph networks", "all:graph networks"},
		{"ti:attention AND au:vaswani", "ti:attention AND au:vaswani"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := buildArxivQuery(tt.in); got != tt.want {
			t.Errorf("buildArxivQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := extractArxivID(tt.in); got != tt.want {
			t.Errorf("extractArxivID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArxivMalformedXML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<feed><entry>")
	}))
	defer ts.Close()
	withArxivBase(t, ts.URL)

	res := NewArxivBackend(testOptions(ts, nil, nil)).Search(context.Background(), Request{Query: "x"})
	if res.Status != StatusError || len(res.Papers) != 0 {
		t.Errorf("res = %+v", res)
	}
}
