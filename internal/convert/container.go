// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/veritas/internal/container"
)

// DefaultImage is a small image with poppler's pdftotext.
const DefaultImage = "minidocks/poppler:latest"

// ContainerConverter pipes PDFs through pdftotext inside a container. It
// depends on a container.Runtime (docker or podman) injected at
// construction time.
type ContainerConverter struct {
	runtime container.Runtime
	image   string
}

// NewContainerConverter verifies that image exists locally before
// returning.
func NewContainerConverter(ctx context.Context, rt container.Runtime, image string) (*ContainerConverter, error) {
	if image == "" {
		image = DefaultImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("pdftotext image not available in %s: %w", rt.Name(), err)
	}
	return &ContainerConverter{runtime: rt, image: image}, nil
}

// Convert extracts page text from pdfPath.
func (c *ContainerConverter) Convert(ctx context.Context, pdfPath string) (Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return Document{}, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	args := append([]string{binPdftotext}, pdftotextArgs...)
	if err := c.runtime.Run(ctx, c.image, args, f, &out); err != nil {
		return Document{}, fmt.Errorf("converting %s: %w", pdfPath, err)
	}
	return splitPages(out.String()), nil
}
