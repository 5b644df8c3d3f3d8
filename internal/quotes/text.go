// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quotes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

// Chunk is a run of consecutive pages sent to the model in one call.
type Chunk struct {
	PageStart int
	PageEnd   int
	Text      string
}

// ChunkPages groups pages into chunks of at most maxChars characters, each
// page prefixed with a "[PAGE n]" marker. A single page longer than
// maxChars becomes its own chunk.
func ChunkPages(pages []string, maxChars int) []Chunk {
	var (
		chunks []Chunk
		cur    strings.Builder
		start  int
	)
	for i, text := range pages {
		pnum := i + 1
		add := fmt.Sprintf("\n\n[PAGE %d]\n%s", pnum, text)
		if cur.Len() > 0 && cur.Len()+len(add) > maxChars {
			chunks = append(chunks, Chunk{PageStart: start, PageEnd: pnum - 1, Text: cur.String()})
			cur.Reset()
		}
		if cur.Len() == 0 {
			start = pnum
		}
		cur.WriteString(add)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, Chunk{PageStart: start, PageEnd: len(pages), Text: cur.String()})
	}
	return chunks
}

// NormalizeWS collapses runs of whitespace to single spaces and trims.
func NormalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupKey is the identity of a quote for deduplication.
func dedupKey(s string) string {
	return strings.ToLower(NormalizeWS(s))
}

// prefixMinLen and prefixLen control the relaxed page match used when PDF
// extraction breaks a quote across lines or columns.
const (
	prefixMinLen = 40
	prefixLen    = 120
)

// FindQuotePage returns the 1-based page containing quote. A quote matches
// when its normalized text appears in the normalized page, or, for quotes
// of at least 40 characters, when its first 120 characters do.
func FindQuotePage(quote string, pages []string) (int, bool) {
	q := NormalizeWS(quote)
	if q == "" {
		return 0, false
	}
	norm := make([]string, len(pages))
	for i, p := range pages {
		norm[i] = NormalizeWS(p)
		if strings.Contains(norm[i], q) {
			return i + 1, true
		}
	}
	if len(q) >= prefixMinLen {
		needle := q[:min(prefixLen, len(q))]
		for i, p := range norm {
			if strings.Contains(p, needle) {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// Dedupe drops quotes whose normalized lowercase text was already seen,
// keeping the first occurrence.
func Dedupe(qs []types.Quote) []types.Quote {
	seen := make(map[string]bool, len(qs))
	out := qs[:0:0]
	for _, q := range qs {
		k := dedupKey(q.Text)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, q)
	}
	return out
}

// sortByPage orders quotes by page, longer quotes first within a page.
func sortByPage(qs []types.Quote) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Page != qs[j].Page {
			return qs[i].Page < qs[j].Page
		}
		return len(qs[i].Text) > len(qs[j].Text)
	})
}

// Merge combines per-PDF quote sets, sorts them by filename then page, and
// drops duplicates across files, keeping the first in that order.
func Merge(sets ...[]types.Quote) []types.Quote {
	var all []types.Quote
	for _, s := range sets {
		all = append(all, s...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Filename != all[j].Filename {
			return all[i].Filename < all[j].Filename
		}
		return all[i].Page < all[j].Page
	})
	return Dedupe(all)
}
