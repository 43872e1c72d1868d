// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/trialmatch/internal/genomic"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// setDefaults registers every config key so that environment overrides
// reach Unmarshal even when no config file mentions the key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("corpus.dir", "corpus")
	v.SetDefault("corpus.trials_dir", "trials")

	v.SetDefault("embedding.backend", string(types.EmbeddingHash))
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.region", "us-east-1")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.cache_size", 1024)
	v.SetDefault("embedding.redis_url", "")
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.user_agent", "trialmatch/"+version)

	v.SetDefault("llm.backend", string(types.LLMAnthropic))
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.region", "us-east-1")
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_concurrent", 4)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("resolver.escalation_threshold", resolve.DefaultEscalationThreshold)

	v.SetDefault("genomic.vep_url", "")
	v.SetDefault("genomic.vep_api_key", "")
	v.SetDefault("genomic.pathogenic_threshold", genomic.DefaultPathogenicThreshold)
	v.SetDefault("genomic.benign_threshold", genomic.DefaultBenignThreshold)

	v.SetDefault("match.top_n", 5)
	v.SetDefault("match.profiles_dir", "patients")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
}

// loadConfig unmarshals v into a Config and checks the values that would
// otherwise fail deep inside a run.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var c types.Config
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if c.Resolver.EscalationThreshold < 0 || c.Resolver.EscalationThreshold > 1 {
		return types.Config{}, fmt.Errorf("resolver.escalation_threshold must be within [0, 1], got %v", c.Resolver.EscalationThreshold)
	}
	if c.Genomic.PathogenicThreshold >= c.Genomic.BenignThreshold {
		return types.Config{}, fmt.Errorf("genomic.pathogenic_threshold (%v) must be below genomic.benign_threshold (%v)",
			c.Genomic.PathogenicThreshold, c.Genomic.BenignThreshold)
	}
	if c.LLM.MaxConcurrent < 0 {
		return types.Config{}, fmt.Errorf("llm.max_concurrent must not be negative, got %d", c.LLM.MaxConcurrent)
	}
	return c, nil
}

// bindFlag ties a flag to a config key. Flags registered here are known at
// init time, so a lookup miss is a programming error.
func bindFlag(key string, f *pflag.Flag) {
	if f == nil {
		panic("bindFlag: no flag for " + key)
	}
	if err := viper.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
