// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/veritas/internal/acquire"
	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/pipeline"
	"github.com/pdiddy/veritas/internal/search"
)

var paperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Look up one paper by DOI, arXiv ID, or Semantic Scholar ID",
	Long: `Paper fetches metadata for a single paper from Semantic Scholar. DOIs
("10.x/...", "doi:..."), arXiv IDs ("2301.07041", "arXiv:2301.07041"), and
Semantic Scholar paper IDs are accepted. With --download the PDF is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runPaper,
}

func init() {
	paperCmd.Flags().String("download", "", "directory to download the PDF into")
	paperCmd.Flags().Bool("json", false, "output metadata as JSON")

	rootCmd.AddCommand(paperCmd)
}

func runPaper(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, closeCache, err := cache.Open(cmd.Context(), cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	client := search.NewClient(pipeline.SearchOptions(cfg.Search, store, logger), cfg.Search.SemanticScholarAPIKey)
	res := client.GetByID(cmd.Context(), args[0])
	switch res.Status {
	case search.StatusOK:
	case search.StatusNotFound:
		return fmt.Errorf("paper %q not found", args[0])
	default:
		return fmt.Errorf("lookup failed (%s): %s", res.Status, res.Detail)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := search.FormatJSON(res.Papers, os.Stdout); err != nil {
			return err
		}
	} else {
		search.FormatTable(res.Papers, os.Stdout)
	}

	dir, _ := cmd.Flags().GetString("download")
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	d := &acquire.Downloader{
		Client:    &http.Client{Timeout: cfg.Search.Timeout},
		UserAgent: cfg.Search.UserAgent,
		Email:     cfg.Search.OpenAlexEmail,
		Logger:    logger,
	}
	p := res.Papers[0]
	if url := acquire.CandidateURL(p); url != "" {
		name := acquire.SafeFilename(p.Title, p.Identifier())
		dest := filepath.Join(dir, name)
		if err := d.Download(cmd.Context(), url, dest); err == nil {
			fmt.Fprintln(os.Stderr, "Downloaded", dest)
			return nil
		}
	}
	paper, err := d.FetchIdentifier(cmd.Context(), args[0], dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Downloaded", paper.PDFPath)
	return nil
}
