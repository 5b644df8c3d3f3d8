// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the Veritas pipeline:
// paper metadata returned by the search backends, downloaded papers, quotes
// extracted from them, and the per-source view returned to clients.
package types

import "strings"

// Backend names recorded in PaperMetadata.Source.
const (
	SourceArxiv           = "arxiv"
	SourceSemanticScholar = "semantic_scholar"
	SourceOpenAlex        = "openalex"
	SourceUpload          = "upload"
)

// PaperMetadata describes a candidate paper returned by a search backend.
type PaperMetadata struct {
	// PaperID is the backend-native identifier (Semantic Scholar paperId,
	// OpenAlex work ID, or arXiv ID).
	PaperID string `json:"paper_id" yaml:"paper_id"`

	Title    string   `json:"title" yaml:"title"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year     int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue    string   `json:"venue,omitempty" yaml:"venue,omitempty"`

	DOI     string `json:"doi,omitempty" yaml:"doi,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// PDFURL is the open-access PDF location, empty when none is known.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	CitationCount int  `json:"citation_count" yaml:"citation_count"`
	IsOpenAccess  bool `json:"is_open_access" yaml:"is_open_access"`

	// Source lists the backends that returned this paper, comma separated
	// when results were merged.
	Source string `json:"source" yaml:"source"`
}

// Identifier returns the most specific external identifier: arXiv ID, then
// DOI, then the backend-native ID.
func (p PaperMetadata) Identifier() string {
	switch {
	case p.ArxivID != "":
		return p.ArxivID
	case p.DOI != "":
		return p.DOI
	default:
		return p.PaperID
	}
}

// FromPrimary reports whether the paper was returned by arXiv or Semantic
// Scholar. OpenAlex-only results are used to fill remaining slots.
func (p PaperMetadata) FromPrimary() bool {
	return strings.Contains(p.Source, SourceArxiv) || strings.Contains(p.Source, SourceSemanticScholar)
}

// Paper is a PDF that has been downloaded or uploaded for a job.
type Paper struct {
	// Filename is the base name of the PDF in the job's papers directory.
	Filename string `json:"filename" yaml:"filename"`

	// PDFPath is the local filesystem path to the PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// SourceURL is the URL the PDF was downloaded from, empty for uploads.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	Title  string `json:"title" yaml:"title"`
	Source string `json:"source" yaml:"source"`

	// Score is the relevance score assigned during ranking (0-10).
	Score int `json:"score,omitempty" yaml:"score,omitempty"`
}
