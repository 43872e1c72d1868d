// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/trialmatch/internal/analyze"
	"github.com/pdiddy/trialmatch/internal/corpus"
	"github.com/pdiddy/trialmatch/internal/deepdive"
	"github.com/pdiddy/trialmatch/internal/embed"
	"github.com/pdiddy/trialmatch/internal/llm"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/internal/retrieve"
	"github.com/pdiddy/trialmatch/internal/suggest"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// openCorpus opens the corpus store and the configured embedder.
func openCorpus(ctx context.Context, c types.Config) (*corpus.Store, embed.Embedder, error) {
	store, err := corpus.NewStore(c.Corpus.Dir)
	if err != nil {
		return nil, nil, err
	}
	e, err := embed.New(ctx, c.Embedding, log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, e, nil
}

// newCompleter builds the configured LLM backend behind a Guard.
func newCompleter(ctx context.Context, c types.LLMConfig, m *metrics.PipelineMetrics) (llm.Completer, error) {
	var backend llm.Completer
	switch c.Backend {
	case types.LLMAnthropic, "":
		if c.APIKey == "" {
			return nil, fmt.Errorf("anthropic backend requires an API key (llm.api_key, TRIALMATCH_LLM_API_KEY, or .secrets/anthropic-api-key)")
		}
		backend = &llm.AnthropicBackend{
			APIKey:    c.APIKey,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Client:    &http.Client{},
		}
	case types.LLMBedrock:
		b, err := llm.NewBedrockBackendFromRegion(ctx, c.Region, c.Model, c.MaxTokens)
		if err != nil {
			return nil, err
		}
		backend = b
	case types.LLMOpenAI:
		b, err := llm.NewOpenAIBackendFromConfig(ctx, c.BaseURL, c.APIKey, c.Model)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown llm backend %q: use anthropic, bedrock, or openai", c.Backend)
	}

	name := string(c.Backend)
	if name == "" {
		name = string(types.LLMAnthropic)
	}
	return llm.NewGuard(backend, llm.GuardOptions{
		Name:              name,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
		Logger:            log,
		Metrics:           m,
	}), nil
}

// newOrchestrator wires every pipeline stage from c.
func newOrchestrator(ctx context.Context, c types.Config, store *corpus.Store, e embed.Embedder, m *metrics.PipelineMetrics) (*deepdive.Orchestrator, error) {
	completer, err := newCompleter(ctx, c.LLM, m)
	if err != nil {
		return nil, err
	}
	return &deepdive.Orchestrator{
		Candidates:    &retrieve.Retriever{Index: store, Embedder: e, Logger: log, Metrics: m},
		Analyzer:      &analyze.Analyzer{LLM: completer, Logger: log},
		Chains:        deepdive.NewChains(resolve.PolicyFrom(c.Resolver), c.Genomic, log),
		Suggester:     &suggest.Engine{Logger: log, Metrics: m},
		MaxConcurrent: c.LLM.MaxConcurrent,
		Timeout:       c.LLM.Timeout,
		Logger:        log,
		Metrics:       m,
	}, nil
}
