// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/veritas/pkg/types"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeArxiv
	TypeDOI
	TypeURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypeArxiv:
		return "arxiv"
	case TypeDOI:
		return "doi"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// Base URLs for identifier resolution. Declared as vars so tests can
// substitute httptest servers.
var (
	arxivPDFBase = "https://arxiv.org/pdf/"
	doiBase      = "https://doi.org/"
)

// arxivPattern matches arXiv IDs: "2301.07041", "arXiv:2301.07041", "2301.07041v2".
var arxivPattern = regexp.MustCompile(`^(?i:arXiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

// doiPattern matches DOIs: "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[^\s]+$`)

// Classify determines the identifier type and returns the normalized form.
// For arXiv, it strips the optional "arXiv:" prefix; for DOIs, "doi:".
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}

	doi := identifier
	if strings.HasPrefix(strings.ToLower(doi), "doi:") {
		doi = doi[len("doi:"):]
	}
	if doiPattern.MatchString(doi) {
		return TypeDOI, doi
	}

	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return TypeURL, identifier
	}

	return TypeUnknown, identifier
}

// PDFURL returns the download URL for an identifier. DOIs go through the
// doi.org resolver; the HTTP client follows redirects and landing pages
// are scanned for a PDF link.
func PDFURL(idType IdentifierType, normalized string) string {
	switch idType {
	case TypeArxiv:
		return arxivPDFBase + normalized
	case TypeDOI:
		return doiBase + normalized
	case TypeURL:
		return normalized
	default:
		return ""
	}
}

// CandidateURL returns the best PDF location for a search result: the
// open-access URL when known, else the arXiv PDF endpoint.
func CandidateURL(p types.PaperMetadata) string {
	if p.PDFURL != "" {
		return p.PDFURL
	}
	if p.ArxivID != "" {
		return arxivPDFBase + p.ArxivID
	}
	return ""
}

// maxFilenameRunes bounds the title part of a generated filename.
const maxFilenameRunes = 50

// SafeFilename derives a PDF filename from a title: the first 50
// characters with everything but letters and digits replaced by "_".
// fallback is used when the title is empty.
func SafeFilename(title, fallback string) string {
	stem := []rune(strings.TrimSpace(title))
	if len(stem) == 0 {
		stem = []rune(fallback)
	}
	if len(stem) > maxFilenameRunes {
		stem = stem[:maxFilenameRunes]
	}
	for i, r := range stem {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			stem[i] = '_'
		}
	}
	if len(stem) == 0 {
		return "paper.pdf"
	}
	return string(stem) + ".pdf"
}
