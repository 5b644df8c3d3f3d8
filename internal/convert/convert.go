// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert extracts per-page plain text from PDFs with poppler's
// pdftotext, either installed on the host or run inside a container.
package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/veritas/internal/container"
	"github.com/pdiddy/veritas/pkg/types"
)

// Document is the extracted text of a PDF, one entry per page. Pages[0] is
// page 1.
type Document struct {
	Pages []string
}

// Empty reports whether no page has any non-whitespace text.
func (d Document) Empty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// Converter extracts page text from a PDF file.
type Converter interface {
	Convert(ctx context.Context, pdfPath string) (Document, error)
}

// pdftotextArgs makes pdftotext read stdin and write UTF-8 text to stdout,
// separating pages with form feeds.
var pdftotextArgs = []string{"-layout", "-enc", "UTF-8", "-", "-"}

// splitPages splits pdftotext output on form feeds and sanitizes each page.
// pdftotext terminates every page with \f, so the trailing empty segment is
// dropped.
func splitPages(out string) Document {
	parts := strings.Split(out, "\f")
	if n := len(parts); n > 0 && strings.TrimSpace(parts[n-1]) == "" {
		parts = parts[:n-1]
	}
	pages := make([]string, len(parts))
	for i, p := range parts {
		pages[i] = Sanitize(p)
	}
	return Document{Pages: pages}
}

// Sanitize replaces invalid UTF-8 (including encoded surrogates) and
// control characters other than \n, \t and \r with spaces.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToValidUTF8(s, " ") {
		if r < 32 && r != '\n' && r != '\t' && r != '\r' {
			r = ' '
		}
		b.WriteRune(r)
	}
	return b.String()
}

// New returns the converter selected by cfg.Converter. The container
// backend detects docker or podman and checks the image is present.
func New(ctx context.Context, cfg types.PipelineConfig) (Converter, error) {
	switch cfg.Converter {
	case "", "pdftotext":
		return NewPdftotext(container.OS)
	case "container":
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		return NewContainerConverter(ctx, rt, cfg.ConverterImage)
	default:
		return nil, fmt.Errorf("unknown converter %q", cfg.Converter)
	}
}
