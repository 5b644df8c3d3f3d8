// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/veritas/internal/container"
)

const binPdftotext = "pdftotext"

// PdftotextConverter runs the host's pdftotext binary.
type PdftotextConverter struct {
	exec container.Executor
}

// NewPdftotext returns a converter using exec. It fails when pdftotext is
// not on PATH.
func NewPdftotext(exec container.Executor) (*PdftotextConverter, error) {
	if _, err := exec.LookPath(binPdftotext); err != nil {
		return nil, fmt.Errorf("pdftotext not found on PATH (install poppler-utils or use the container converter): %w", err)
	}
	return &PdftotextConverter{exec: exec}, nil
}

// Convert extracts page text from pdfPath.
func (c *PdftotextConverter) Convert(ctx context.Context, pdfPath string) (Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return Document{}, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := c.exec.RunPiped(ctx, binPdftotext, pdftotextArgs, f, &out); err != nil {
		return Document{}, fmt.Errorf("extracting text from %s: %w", pdfPath, err)
	}
	return splitPages(out.String()), nil
}
