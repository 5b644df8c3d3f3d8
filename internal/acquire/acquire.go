// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads open-access PDFs for ranked papers. Only
// responses that are actually PDFs are kept; HTML landing pages are
// followed one hop through their citation_pdf_url meta tag.
package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/veritas/pkg/types"
)

// ErrNotPDF is returned when a URL does not lead to a PDF.
var ErrNotPDF = errors.New("response is not a PDF")

var pdfMagic = []byte("%PDF")

// maxLandingPageBytes bounds how much of an HTML landing page is parsed.
const maxLandingPageBytes = 2 << 20

// Downloader fetches PDFs over HTTP.
type Downloader struct {
	Client    *http.Client
	UserAgent string

	// Email is sent to OpenAlex as mailto when resolving DOIs.
	Email string

	// Concurrency bounds parallel downloads in DownloadAll (default 4).
	Concurrency int

	Logger *slog.Logger
}

func (d *Downloader) client() *http.Client {
	if d.Client == nil {
		return &http.Client{Timeout: 30 * time.Second}
	}
	return d.Client
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Download fetches rawURL into destPath. The body is written to a temp
// file in the destination directory and renamed on success, so a failed
// download never leaves a partial file behind.
func (d *Downloader) Download(ctx context.Context, rawURL, destPath string) error {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	head, _ := br.Peek(len(pdfMagic))
	if !bytes.HasPrefix(head, pdfMagic) {
		if !isHTML(resp) {
			return fmt.Errorf("%s: %w", rawURL, ErrNotPDF)
		}
		pdfURL, err := citationPDFURL(io.LimitReader(br, maxLandingPageBytes), resp.Request.URL)
		if err != nil || pdfURL == "" || pdfURL == rawURL {
			return fmt.Errorf("%s: %w", rawURL, ErrNotPDF)
		}
		d.logger().Debug("following citation_pdf_url", "from", rawURL, "to", pdfURL)
		resp.Body.Close()

		resp, err = d.get(ctx, pdfURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		br = bufio.NewReader(resp.Body)
		if head, _ := br.Peek(len(pdfMagic)); !bytes.HasPrefix(head, pdfMagic) {
			return fmt.Errorf("%s: %w", pdfURL, ErrNotPDF)
		}
	}

	return writeAtomic(destPath, br)
}

func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf,text/html;q=0.8,*/*;q=0.5")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html")
}

// citationPDFURL returns the absolute citation_pdf_url of an HTML page.
func citationPDFURL(r io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	href, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String(), nil
}

func writeAtomic(destPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// DownloadAll downloads the PDF of every candidate into dir, in parallel.
// Candidates without a PDF location or whose download fails are skipped
// and logged. Filenames come from SafeFilename and are made unique within
// the batch. The returned papers keep candidate order.
func (d *Downloader) DownloadAll(ctx context.Context, candidates []types.PaperMetadata, dir string) []types.Paper {
	names := assignFilenames(candidates)
	results := make([]*types.Paper, len(candidates))

	limit := d.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range candidates {
		src := CandidateURL(c)
		if src == "" {
			d.logger().Info("no PDF location", "title", c.Title)
			continue
		}
		g.Go(func() error {
			dest := filepath.Join(dir, names[i])
			if err := d.Download(gctx, src, dest); err != nil {
				d.logger().Warn("download failed", "title", c.Title, "url", src, "error", err)
				return nil
			}
			results[i] = &types.Paper{
				Filename:  names[i],
				PDFPath:   dest,
				SourceURL: src,
				Title:     c.Title,
				Source:    c.Source,
			}
			return nil
		})
	}
	g.Wait()

	var papers []types.Paper
	for _, p := range results {
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers
}

func assignFilenames(candidates []types.PaperMetadata) []string {
	used := make(map[string]int, len(candidates))
	names := make([]string, len(candidates))
	for i, c := range candidates {
		name := SafeFilename(c.Title, c.Identifier())
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = strings.TrimSuffix(name, ".pdf") + "_" + strconv.Itoa(n+1) + ".pdf"
		} else {
			used[name] = 1
		}
		names[i] = name
	}
	return names
}

// FetchIdentifier downloads the paper named by an arXiv ID, DOI, or URL into
// dir. DOIs are resolved through OpenAlex to an open-access PDF first and
// fall back to the doi.org resolver.
func (d *Downloader) FetchIdentifier(ctx context.Context, identifier, dir string) (types.Paper, error) {
	idType, normalized := Classify(identifier)
	if idType == TypeUnknown {
		return types.Paper{}, fmt.Errorf("unrecognized identifier format: %q", identifier)
	}

	src := PDFURL(idType, normalized)
	title := ""
	if idType == TypeDOI {
		oaURL, oaTitle, err := d.resolveOpenAlex(ctx, normalized)
		switch {
		case err != nil:
			d.logger().Warn("OpenAlex lookup failed", "doi", normalized, "error", err)
		case oaURL != "":
			src = oaURL
		}
		title = oaTitle
	}

	name := SafeFilename(title, normalized)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return types.Paper{Filename: name, PDFPath: dest, SourceURL: src, Title: title, Source: idType.String()}, nil
	}
	if err := d.Download(ctx, src, dest); err != nil {
		return types.Paper{}, fmt.Errorf("downloading %s: %w", identifier, err)
	}
	return types.Paper{Filename: name, PDFPath: dest, SourceURL: src, Title: title, Source: idType.String()}, nil
}
