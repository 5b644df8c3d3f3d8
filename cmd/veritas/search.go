// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/pipeline"
	"github.com/pdiddy/veritas/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search academic APIs for candidate papers",
	Long: `Search queries arXiv, Semantic Scholar, and OpenAlex for papers matching a
query. Results are deduplicated across sources. Successful responses are
cached, so repeating a search makes no network calls.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("from", 0, "earliest publication year")
	searchCmd.Flags().Int("to", 0, "latest publication year")
	searchCmd.Flags().Bool("open-access", false, "only papers with a free PDF")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results per backend (default from config)")
	searchCmd.Flags().StringSlice("backend", nil, "backends to query (arxiv, semantic_scholar, openalex); default all enabled")
	searchCmd.Flags().Int("research", 0, "return this many open-access Semantic Scholar papers, most cited first")
	searchCmd.Flags().String("format", "table", "output format: table, json, or csl")
	searchCmd.Flags().String("save", "", "write the query and results to a YAML query file")
	searchCmd.Flags().String("load", "", "re-run the query stored in a YAML query file")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := search.Request{Query: strings.Join(args, " ")}
	req.YearFrom, _ = cmd.Flags().GetInt("from")
	req.YearTo, _ = cmd.Flags().GetInt("to")
	req.OpenAccess, _ = cmd.Flags().GetBool("open-access")
	if cmd.Flags().Changed("max-results") {
		req.Limit, _ = cmd.Flags().GetInt("max-results")
	}
	if path, _ := cmd.Flags().GetString("load"); path != "" {
		qf, err := search.ReadQueryFile(path)
		if err != nil {
			return err
		}
		req = qf.Query.ToRequest()
	}
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("provide a query")
	}

	store, closeCache, err := cache.Open(cmd.Context(), cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	var out search.Output
	if n, _ := cmd.Flags().GetInt("research"); n > 0 {
		client := search.NewClient(pipeline.SearchOptions(cfg.Search, store, logger), cfg.Search.SemanticScholarAPIKey)
		res := client.SearchForResearch(cmd.Context(), req.Query, n)
		if !res.OK() {
			return fmt.Errorf("semantic scholar: %s %s", res.Status, res.Detail)
		}
		out = search.Output{Papers: res.Papers, PerBackend: map[string]search.Result{client.Name(): {Status: res.Status, Cached: res.Cached}}}
	} else {
		if req.Limit > 0 {
			cfg.Search.ArxivLimit = req.Limit
			cfg.Search.SemanticLimit = req.Limit
			cfg.Search.OpenAlexLimit = req.Limit
		}
		backends := selectBackends(pipeline.Backends(cfg.Search, store, logger), cmd)
		if len(backends) == 0 {
			return fmt.Errorf("no search backends selected")
		}
		out = search.SearchAll(cmd.Context(), backends, req, logger)
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := search.WriteQueryFile(path, search.NewQueryFile(req, out, time.Now())); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Saved query to", path)
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return search.FormatJSON(out.Papers, os.Stdout)
	case "csl":
		return search.FormatCSL(out.Papers, os.Stdout)
	default:
		search.FormatTable(out.Papers, os.Stdout)
		if out.DupsRemoved > 0 {
			fmt.Fprintf(os.Stdout, "%d duplicates removed\n", out.DupsRemoved)
		}
		return nil
	}
}

func selectBackends(all []search.Backend, cmd *cobra.Command) []search.Backend {
	names, _ := cmd.Flags().GetStringSlice("backend")
	if len(names) == 0 {
		return all
	}
	var out []search.Backend
	for _, b := range all {
		for _, n := range names {
			if strings.EqualFold(b.Name(), n) {
				out = append(out, b)
			}
		}
	}
	return out
}
