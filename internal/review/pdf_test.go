// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewMarkdown = "# Effect of X on Y\n\n## Findings\n\nX raises Y [1].\nLine two\n\n\n## References\n\n1. Doe, J. (2024)."

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPDF(&buf, reviewMarkdown))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "%PDF-"), "PDF header")
	assert.Contains(t, out, "%%EOF")
}

func TestRenderPDFBlocks(t *testing.T) {
	doc := newPDF(reviewMarkdown)
	doc.SetCompression(false)
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	out := buf.String()

	for _, text := range []string{"Effect of X on Y", "Findings", "X raises Y [1].", "Line two", "1. Doe, J. \\(2024\\)."} {
		assert.Contains(t, out, "("+text+") Tj", text)
	}
	assert.NotContains(t, out, "(# Effect")
	assert.NotContains(t, out, "(## Findings")
	assert.Equal(t, 1, doc.PageCount())
}
