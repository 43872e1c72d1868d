// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by backends that make network
// requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "trialmatch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// CorpusConfig locates the trial corpus index.
type CorpusConfig struct {
	// Dir is the base directory for the corpus (contains index/).
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// TrialsDir holds pre-structured trial records (YAML or JSON) to index.
	TrialsDir string `json:"trials_dir" yaml:"trials_dir" mapstructure:"trials_dir"`
}

// EmbeddingBackend identifies the sentence-embedding provider.
type EmbeddingBackend string

const (
	EmbeddingHash    EmbeddingBackend = "hash"
	EmbeddingHTTP    EmbeddingBackend = "http"
	EmbeddingBedrock EmbeddingBackend = "bedrock"
)

// EmbeddingConfig holds settings for the query embedder.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Backend selects the embedder: hash, http, or bedrock.
	Backend EmbeddingBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the OpenAI-compatible API base for the http backend.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey authenticates the http backend.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Region is the AWS region for the bedrock backend.
	Region string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`

	// Dimension is the expected vector length (0 disables the check).
	Dimension int `json:"dimension" yaml:"dimension" mapstructure:"dimension"`

	// CacheSize is the in-process LRU size (0 disables the cache).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`

	// RedisURL enables the shared Redis cache when set.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" mapstructure:"redis_url"`

	// CacheTTL is the Redis entry lifetime.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// LLMBackend identifies the text-completion provider.
type LLMBackend string

const (
	LLMAnthropic LLMBackend = "anthropic"
	LLMBedrock   LLMBackend = "bedrock"
	LLMOpenAI    LLMBackend = "openai"
)

// LLMConfig holds settings for the text-completion capability.
type LLMConfig struct {
	// Backend selects the provider: anthropic, bedrock, or openai.
	Backend LLMBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Model is the model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL overrides the provider endpoint (openai backend).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// APIKey authenticates the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Region is the AWS region for the bedrock backend.
	Region string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`

	// Timeout bounds each completion call independently (default 90s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxConcurrent bounds concurrent completion calls (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// RequestsPerMinute bounds the call rate (0 disables the limiter).
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// MaxTokens caps the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResolverConfig holds the internal-search escalation policy.
type ResolverConfig struct {
	// EscalationThreshold is the minimum finding confidence for an UNCLEAR
	// criterion to become MET or NOT_MET (default 0.9).
	EscalationThreshold float64 `json:"escalation_threshold" yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
}

// GenomicConfig holds settings for variant interpretation.
type GenomicConfig struct {
	// VEPURL enables the external variant-effect-prediction service when set.
	VEPURL string `json:"vep_url,omitempty" yaml:"vep_url,omitempty" mapstructure:"vep_url"`

	// VEPAPIKey authenticates the VEP service.
	VEPAPIKey string `json:"vep_api_key,omitempty" yaml:"vep_api_key,omitempty" mapstructure:"vep_api_key"`

	// PathogenicThreshold: delta scores at or below it are pathogenic.
	PathogenicThreshold float64 `json:"pathogenic_threshold" yaml:"pathogenic_threshold" mapstructure:"pathogenic_threshold"`

	// BenignThreshold: delta scores at or above it are benign.
	BenignThreshold float64 `json:"benign_threshold" yaml:"benign_threshold" mapstructure:"benign_threshold"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	// Level is a logrus level name (debug, info, warn, error).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "text" or "json".
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File additionally writes logs to this path when set.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	// Addr serves /metrics on this address when set (e.g. ":9102").
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" mapstructure:"addr"`
}

// MatchConfig holds settings for a deep-dive request.
type MatchConfig struct {
	// TopN is the number of candidate trials to analyze (default 5).
	TopN int `json:"top_n" yaml:"top_n" mapstructure:"top_n"`

	// ProfilesDir holds patient profiles addressable by ID.
	ProfilesDir string `json:"profiles_dir" yaml:"profiles_dir" mapstructure:"profiles_dir"`
}

// Config groups all stage configurations.
type Config struct {
	Corpus    CorpusConfig    `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	LLM       LLMConfig       `json:"llm" yaml:"llm" mapstructure:"llm"`
	Resolver  ResolverConfig  `json:"resolver" yaml:"resolver" mapstructure:"resolver"`
	Genomic   GenomicConfig   `json:"genomic" yaml:"genomic" mapstructure:"genomic"`
	Match     MatchConfig     `json:"match" yaml:"match" mapstructure:"match"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}
