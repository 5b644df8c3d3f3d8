// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves API keys and service credentials. Values come
// from the process environment, then .env files, then a directory of
// plain-text key files named like "anthropic-api-key".
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pdiddy/veritas/pkg/types"
)

// Credentials are the secrets Veritas reads from its environment.
type Credentials struct {
	DedalusAPIKey   string `env:"DEDALUS_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`

	SemanticScholarAPIKey string `env:"SEMANTIC_SCHOLAR_API_KEY"`
	OpenAlexAPIKey        string `env:"OPENALEX_API_KEY"`
	OpenAlexEmail         string `env:"OPENALEX_EMAIL"`

	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
}

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error. Unreadable files are
// logged and skipped.
func Load(dir string, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// envName maps a key file name to its variable: "openalex-email" becomes
// "OPENALEX_EMAIL".
func envName(file string) string {
	return strings.ToUpper(strings.ReplaceAll(file, "-", "_"))
}

// Resolve merges the secrets directory, the given .env files, and environ
// (in increasing precedence) and parses the result into Credentials.
// Missing .env files are skipped. environ is usually os.Environ().
func Resolve(secretsDir string, dotenv []string, environ []string, logger *slog.Logger) (Credentials, error) {
	vars := make(map[string]string)

	files, err := Load(secretsDir, logger)
	if err != nil {
		return Credentials{}, err
	}
	for name, v := range files {
		vars[envName(name)] = v
	}

	for _, path := range dotenv {
		m, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Credentials{}, fmt.Errorf("reading %s: %w", path, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			vars[k] = v
		}
	}

	var c Credentials
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}
	return c, nil
}

// LLMKey returns the API key for provider.
func (c Credentials) LLMKey(provider string) string {
	switch provider {
	case types.ProviderOpenAI:
		return c.OpenAIAPIKey
	case types.ProviderAnthropic:
		return c.AnthropicAPIKey
	case types.ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.DedalusAPIKey
	}
}

// Apply fills empty credential fields of cfg. Values already set in the
// configuration win.
func (c Credentials) Apply(cfg *types.Config) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.LLM.APIKey, c.LLMKey(cfg.LLM.Provider))
	fill(&cfg.Search.SemanticScholarAPIKey, c.SemanticScholarAPIKey)
	fill(&cfg.Search.OpenAlexAPIKey, c.OpenAlexAPIKey)
	fill(&cfg.Search.OpenAlexEmail, c.OpenAlexEmail)
	fill(&cfg.Storage.AccessKey, c.MinioAccessKey)
	fill(&cfg.Storage.SecretKey, c.MinioSecretKey)
}
