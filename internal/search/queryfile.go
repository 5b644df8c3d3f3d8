// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/veritas/pkg/types"
)

// QueryFile is the on-disk representation of a search and its results, so
// a search can be reloaded without re-querying the APIs.
type QueryFile struct {
	Query   QueryParams           `yaml:"query"`
	Papers  []types.PaperMetadata `yaml:"papers"`
	Summary QuerySummary          `yaml:"summary"`
}

// QueryParams stores the request in a serializable form.
type QueryParams struct {
	Text       string `yaml:"text"`
	YearFrom   int    `yaml:"year_from,omitempty"`
	YearTo     int    `yaml:"year_to,omitempty"`
	OpenAccess bool   `yaml:"open_access,omitempty"`
	Limit      int    `yaml:"limit,omitempty"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total             int               `yaml:"total"`
	DuplicatesRemoved int               `yaml:"duplicates_removed"`
	Backends          map[string]Status `yaml:"backends,omitempty"`
	Timestamp         time.Time         `yaml:"timestamp"`
}

// NewQueryFile builds a QueryFile from a request and its merged output.
func NewQueryFile(req Request, out Output, now time.Time) QueryFile {
	qf := QueryFile{
		Query: QueryParams{
			Text:       req.normalizedQuery(),
			YearFrom:   req.YearFrom,
			YearTo:     req.YearTo,
			OpenAccess: req.OpenAccess,
			Limit:      req.Limit,
		},
		Papers: out.Papers,
		Summary: QuerySummary{
			Total:             len(out.Papers),
			DuplicatesRemoved: out.DupsRemoved,
			Timestamp:         now.UTC(),
		},
	}
	if len(out.PerBackend) > 0 {
		qf.Summary.Backends = make(map[string]Status, len(out.PerBackend))
		names := make([]string, 0, len(out.PerBackend))
		for name := range out.PerBackend {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			qf.Summary.Backends[name] = out.PerBackend[name].Status
		}
	}
	return qf
}

// WriteQueryFile saves a query file as YAML.
func WriteQueryFile(path string, qf QueryFile) error {
	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// ToRequest converts stored parameters back into a Request.
func (p QueryParams) ToRequest() Request {
	return Request{
		Query:      p.Text,
		YearFrom:   p.YearFrom,
		YearTo:     p.YearTo,
		OpenAccess: p.OpenAccess,
		Limit:      p.Limit,
	}
}
