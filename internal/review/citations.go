// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/veritas/internal/convert"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

const citeSystem = "Infer the best APA-style reference. Return JSON only."

const (
	snippetPages = 2
	snippetChars = 10000
)

var citationSchema = llm.MustSchema(`{
  "type": "object",
  "properties": {
    "reference": {"type": "string"},
    "footnote": {"type": "string"}
  }
}`)

// Citer infers a reference for each source PDF from its first pages.
type Citer struct {
	LLM       llm.Client
	Converter convert.Converter
	Model     string
}

// Snippet joins the first two non-empty pages, each tagged with its page
// number, truncated to 10000 characters.
func Snippet(doc convert.Document) string {
	var parts []string
	for i, p := range doc.Pages[:min(snippetPages, len(doc.Pages))] {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, fmt.Sprintf("[PAGE %d]\n%s", i+1, t))
		}
	}
	s := strings.Join(parts, "\n\n")
	if r := []rune(s); len(r) > snippetChars {
		s = string(r[:snippetChars])
	}
	return s
}

// Cite returns one citation per paper, numbered in filename order. A paper
// whose text or model response is unusable gets the filename fallbacks.
// Only context cancellation is returned as an error.
func (c *Citer) Cite(ctx context.Context, papers []types.Paper) ([]types.Citation, error) {
	sorted := append([]types.Paper(nil), papers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	out := make([]types.Citation, 0, len(sorted))
	for i, p := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		title := p.Title
		if title == "" {
			title = TitleFromFilename(p.Filename)
		}
		cit := types.Citation{
			Number:    i + 1,
			Filename:  p.Filename,
			Title:     title,
			Reference: p.Filename + ". (n.d.).",
			Footnote:  p.Filename + ", n.d.",
		}
		if ref, foot, ok := c.infer(ctx, p.PDFPath); ok {
			if ref != "" {
				cit.Reference = ref
			}
			if foot != "" {
				cit.Footnote = foot
			}
		}
		out = append(out, cit)
	}
	return out, nil
}

func (c *Citer) infer(ctx context.Context, pdfPath string) (reference, footnote string, ok bool) {
	if c.Converter == nil || c.LLM == nil {
		return "", "", false
	}
	doc, err := c.Converter.Convert(ctx, pdfPath)
	if err != nil {
		return "", "", false
	}
	snippet := Snippet(doc)
	if snippet == "" {
		return "", "", false
	}
	raw, err := c.LLM.Complete(ctx, llm.Request{
		Model:  c.Model,
		System: citeSystem,
		Prompt: snippet + "\n\nReturn JSON {reference, footnote}.",
		JSON:   true,
	})
	if err != nil {
		return "", "", false
	}
	var resp struct {
		Reference string `json:"reference"`
		Footnote  string `json:"footnote"`
	}
	if err := citationSchema.Decode(raw, &resp); err != nil {
		return "", "", false
	}
	return strings.TrimSpace(resp.Reference), strings.TrimSpace(resp.Footnote), true
}
