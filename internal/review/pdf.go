// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Page layout of the rendered review, in points: US Letter with one-inch
// margins, 12 pt Times on a 20 pt leading.
const (
	pdfMargin   = 72
	pdfFontSize = 12
	pdfLeading  = 20
	pdfSpacer   = 8
)

// RenderPDF typesets review markdown as a PDF. Blocks are separated by
// blank lines; "# " blocks become a centered bold title, "## " blocks a bold
// heading, and everything else a paragraph that keeps its line breaks.
func RenderPDF(w io.Writer, markdown string) error {
	doc := newPDF(markdown)
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("rendering review PDF: %w", err)
	}
	return nil
}

func newPDF(markdown string) *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, block := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		switch {
		case strings.HasPrefix(block, "# "):
			doc.SetFont("Times", "B", pdfFontSize)
			doc.MultiCell(0, pdfLeading, tr(block[2:]), "", "C", false)
		case strings.HasPrefix(block, "## "):
			doc.SetFont("Times", "B", pdfFontSize)
			doc.MultiCell(0, pdfLeading, tr(block[3:]), "", "L", false)
		default:
			doc.SetFont("Times", "", pdfFontSize)
			doc.MultiCell(0, pdfLeading, tr(block), "", "L", false)
		}
		doc.Ln(pdfSpacer)
	}
	return doc
}
