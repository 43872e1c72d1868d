// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files. Each
// file is one secret: the filename is the key name and the trimmed contents
// are the value.
//
// Recognized key files: anthropic-api-key, openai-api-key,
// embedding-api-key, vep-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Key file names.
const (
	AnthropicAPIKey = "anthropic-api-key"
	OpenAIAPIKey    = "openai-api-key"
	EmbeddingAPIKey = "embedding-api-key"
	VEPAPIKey       = "vep-api-key"
)

// Load reads all regular, non-hidden files in dir. A missing directory
// yields an empty map. Unreadable files are logged and skipped.
func Load(dir string, log *logrus.Logger) (map[string]string, error) {
	log = logging.OrDiscard(log)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
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
			log.WithError(err).WithField("secret", name).Warn("could not read secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// Apply fills empty credential fields of cfg from s. Values already set
// through the config file or environment win.
func Apply(cfg *types.Config, s map[string]string) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Backend {
		case types.LLMAnthropic, "":
			cfg.LLM.APIKey = s[AnthropicAPIKey]
		case types.LLMOpenAI:
			cfg.LLM.APIKey = s[OpenAIAPIKey]
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = s[EmbeddingAPIKey]
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = s[OpenAIAPIKey]
		}
	}
	if cfg.Genomic.VEPAPIKey == "" {
		cfg.Genomic.VEPAPIKey = s[VEPAPIKey]
	}
}
