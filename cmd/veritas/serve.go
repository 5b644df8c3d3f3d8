// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/veritas/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes research jobs over HTTP: POST /api/jobs to submit, GET
/api/jobs/{id} to poll, GET /api/jobs/{id}/stream for NDJSON progress, and
the one-shot POST /api/research used by the web frontend.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	serveCmd.Flags().String("jobs-store", "", "job store: memory, sqlite, or postgres")
	serveCmd.Flags().String("jobs-dsn", "", "SQLite path or Postgres connection string")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("jobs.store", serveCmd.Flags().Lookup("jobs-store"))
	viper.BindPFlag("jobs.dsn", serveCmd.Flags().Lookup("jobs-dsn"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cfg.Jobs, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.orch, cfg.Server, cfg.Pipeline.PapersDir, logger)
	return srv.Run(ctx, cfg.Server.Addr)
}
