// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"sort"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

// TitleFromFilename derives a display title from a sanitized PDF name.
func TitleFromFilename(name string) string {
	name = strings.TrimSuffix(name, ".pdf")
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}

// Sources groups rows by filename in sorted order. Quotes are numbered
// from 1 within each source; key findings are the non-empty ideas.
func Sources(rows []types.Quote) []types.Source {
	byFile := make(map[string][]types.Quote)
	for _, r := range rows {
		fname := strings.TrimSpace(r.Filename)
		if fname == "" || strings.TrimSpace(r.Text) == "" {
			continue
		}
		byFile[fname] = append(byFile[fname], r)
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	out := make([]types.Source, 0, len(files))
	for i, f := range files {
		src := types.Source{
			ID:          i + 1,
			Title:       TitleFromFilename(f),
			Filename:    f,
			Quotes:      make([]types.SourceQuote, 0, len(byFile[f])),
			KeyFindings: []string{},
		}
		for j, r := range byFile[f] {
			src.Quotes = append(src.Quotes, types.SourceQuote{ID: j + 1, Text: strings.TrimSpace(r.Text), Page: r.Page})
			if idea := strings.TrimSpace(r.Idea); idea != "" {
				src.KeyFindings = append(src.KeyFindings, idea)
			}
		}
		out = append(out, src)
	}
	return out
}
