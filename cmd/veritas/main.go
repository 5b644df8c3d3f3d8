// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the veritas CLI: the API server plus
// commands that exercise the search client and the pipeline directly.
package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/veritas/internal/secrets"
	"github.com/pdiddy/veritas/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Literature-review assistant",
	Long: `veritas answers a research question with a literature review. It retrieves
open-access papers from arXiv, Semantic Scholar, and OpenAlex (or uses
uploaded PDFs), extracts verbatim quotes, and writes a summary and review.

Run "veritas serve" for the HTTP API, or "veritas research" for one job in
the terminal.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./veritas.yaml or ~/.config/veritas/veritas.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of key files (dedalus-api-key, ...)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig seeds viper with the defaults so every key is known to
// AutomaticEnv, then merges the config file over them.
func initConfig() {
	defaults, err := yaml.Marshal(types.DefaultConfig())
	if err == nil {
		viper.SetConfigType("yaml")
		viper.ReadConfig(bytes.NewReader(defaults))
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("veritas")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "veritas"))
		}
	}

	viper.SetEnvPrefix("VERITAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "warning: reading config:", err)
	}
}

// loadConfig decodes viper's merged view, fills credentials from the
// environment, .env, and the secrets directory, and validates the result.
func loadConfig(cmd *cobra.Command) (types.Config, *slog.Logger, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.ApplyDefaults()
	logger := newLogger(cfg.Log)

	dir, _ := cmd.Flags().GetString("secrets-dir")
	creds, err := secrets.Resolve(dir, []string{".env"}, os.Environ(), logger)
	if err != nil {
		return cfg, logger, err
	}
	creds.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, logger, err
	}
	return cfg, logger, nil
}

func newLogger(cfg types.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
