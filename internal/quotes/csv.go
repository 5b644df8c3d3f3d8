// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quotes

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdiddy/veritas/pkg/types"
)

var (
	baseHeader = []string{"quote", "page_number", "filename"}
	ideaHeader = append(append([]string(nil), baseHeader...), "idea")
)

// WriteCSV writes quotes with the header quote,page_number,filename, plus
// an idea column when withIdeas is set.
func WriteCSV(w io.Writer, qs []types.Quote, withIdeas bool) error {
	cw := csv.NewWriter(w)
	header := baseHeader
	if withIdeas {
		header = ideaHeader
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, q := range qs {
		row := []string{q.Text, strconv.Itoa(q.Page), q.Filename}
		if withIdeas {
			row = append(row, q.Idea)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads quotes written by WriteCSV. Rows missing a quote, a
// numeric page, or a filename are skipped.
func ReadCSV(r io.Reader) ([]types.Quote, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range baseHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []types.Quote
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		page, err := strconv.Atoi(strings.TrimSpace(field(rec, "page_number")))
		q := types.Quote{
			Text:     field(rec, "quote"),
			Page:     page,
			Filename: field(rec, "filename"),
			Idea:     field(rec, "idea"),
		}
		if err != nil || q.Text == "" || q.Filename == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
