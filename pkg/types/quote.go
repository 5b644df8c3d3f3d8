// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Quote is a verbatim passage extracted from a source PDF. Page is 1-based.
type Quote struct {
	Text     string `json:"quote" yaml:"quote"`
	Page     int    `json:"page_number" yaml:"page_number"`
	Filename string `json:"filename" yaml:"filename"`

	// Idea is a one-sentence synthesis of the quote, empty until the
	// synthesizing stage has run.
	Idea string `json:"idea,omitempty" yaml:"idea,omitempty"`
}

// Source groups the quotes taken from one PDF for presentation.
type Source struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Filename    string        `json:"filename"`
	Quotes      []SourceQuote `json:"quotes"`
	KeyFindings []string      `json:"keyFindings"`
}

// SourceQuote is a numbered quote within a Source.
type SourceQuote struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	Page int    `json:"page"`
}

// ReviewMetadata summarizes a generated literature review.
type ReviewMetadata struct {
	WordCount       int `json:"word_count"`
	SourcesAnalyzed int `json:"sources_analyzed"`
	EvidenceItems   int `json:"evidence_items"`
}

// Citation is one entry of the citation index written alongside the review.
type Citation struct {
	Number    int    `json:"number"`
	Filename  string `json:"filename"`
	Title     string `json:"title"`
	Reference string `json:"reference,omitempty"`
	Footnote  string `json:"footnote,omitempty"`
}
