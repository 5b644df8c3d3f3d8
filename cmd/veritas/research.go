// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/veritas/internal/job"
	"github.com/pdiddy/veritas/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research <question>",
	Short: "Run one research job in-process",
	Long: `Research runs the full pipeline for a question without the HTTP server:
retrieve open-access papers (or use the PDFs given with --file), extract
verified quotes, and write a cited literature review. Progress goes to
stderr; the review goes to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringSlice("file", nil, "PDF to review instead of searching (repeatable)")
	researchCmd.Flags().Bool("ndjson", false, "print the raw event stream instead of the review")
	researchCmd.Flags().String("out", "", "write the finished job as YAML to this file")
	researchCmd.Flags().String("artifacts", "", "directory to copy the job artifacts into")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	req := job.Request{Question: strings.Join(args, " ")}
	paths, _ := cmd.Flags().GetStringSlice("file")
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		req.Files = append(req.Files, job.Upload{Filename: filepath.Base(p), Content: data})
	}

	a, err := newApp(ctx, cfg, types.JobsConfig{Store: types.JobStoreMemory, MaxConcurrent: 1}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.orch.Submit(ctx, req)
	if err != nil {
		return err
	}
	events, err := a.orch.Stream(ctx, j.ID)
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetBool("ndjson")
	enc := json.NewEncoder(os.Stdout)
	var last job.Event
	for ev := range events {
		last = ev
		if raw {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		switch ev.Type {
		case job.EventStep:
			fmt.Fprintf(os.Stderr, "==> %s\n", ev.Step)
		case job.EventLog:
			fmt.Fprintf(os.Stderr, "    %s\n", ev.Message)
		}
	}
	if ctx.Err() != nil {
		if _, err := a.orch.Cancel(cmd.Context(), j.ID); err != nil {
			logger.Debug("cancel after interrupt", "error", err)
		}
		return ctx.Err()
	}

	a.orch.Wait()
	final, err := a.orch.Get(cmd.Context(), j.ID)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := writeJobFile(path, final); err != nil {
			return err
		}
	}
	if last.Type == job.EventError {
		return fmt.Errorf("research failed: %s", last.Detail)
	}
	if !raw && final.Result != nil {
		fmt.Fprintln(os.Stdout, final.Result.LiteratureReview)
	}
	if dir, _ := cmd.Flags().GetString("artifacts"); dir != "" {
		return copyArtifacts(cmd, a.orch, final, dir)
	}
	return nil
}

func writeJobFile(path string, j job.Job) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := job.WriteYAML(f, j); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyArtifacts(cmd *cobra.Command, orch *job.Orchestrator, j job.Job, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range j.ArtifactNames() {
		rc, err := orch.Artifact(cmd.Context(), j.ID, name)
		if err != nil {
			return fmt.Errorf("artifact %s: %w", name, err)
		}
		dest := filepath.Join(dir, filepath.Base(name))
		f, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(f, rc)
		rc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		fmt.Fprintln(os.Stderr, "Wrote", dest)
	}
	return nil
}
