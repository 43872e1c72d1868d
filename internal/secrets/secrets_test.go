// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trialmatch/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicAPIKey, "  ak_abc  \n")
				writeFile(t, dir, VEPAPIKey, "vep_123")
				return dir
			},
			want: map[string]string{
				AnthropicAPIKey: "ak_abc",
				VEPAPIKey:       "vep_123",
			},
		},
		{
			name: "missing directory yields empty map",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files, dotfiles, and directories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIAPIKey, "sk_1")
				writeFile(t, dir, "blank", " \n\t")
				writeFile(t, dir, ".gitkeep", "")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
				return dir
			},
			want: map[string]string{OpenAIAPIKey: "sk_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply(t *testing.T) {
	s := map[string]string{
		AnthropicAPIKey: "ak",
		OpenAIAPIKey:    "sk",
		VEPAPIKey:       "vk",
	}

	t.Run("fills empty fields", func(t *testing.T) {
		cfg := types.Config{LLM: types.LLMConfig{Backend: types.LLMAnthropic}}
		Apply(&cfg, s)
		assert.Equal(t, "ak", cfg.LLM.APIKey)
		assert.Equal(t, "sk", cfg.Embedding.APIKey, "embedding falls back to the OpenAI key")
		assert.Equal(t, "vk", cfg.Genomic.VEPAPIKey)
	})

	t.Run("openai backend uses openai key", func(t *testing.T) {
		cfg := types.Config{LLM: types.LLMConfig{Backend: types.LLMOpenAI}}
		Apply(&cfg, s)
		assert.Equal(t, "sk", cfg.LLM.APIKey)
	})

	t.Run("configured values win", func(t *testing.T) {
		cfg := types.Config{LLM: types.LLMConfig{APIKey: "from-env"}}
		Apply(&cfg, s)
		assert.Equal(t, "from-env", cfg.LLM.APIKey)
	})
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
