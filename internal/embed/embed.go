// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed converts free text into fixed-dimension vectors. The
// corpus indexer embeds each trial's eligibility text and the retriever
// embeds the search query with the same Embedder.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Embedder turns text into a vector. Implementations are deterministic for
// a fixed model and input. Failures wrap types.ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Identifier is implemented by embedders that can name their model. The
// name scopes cache keys and is stored alongside indexed vectors.
type Identifier interface {
	ID() string
}

// ID returns e's identifier, or "unknown".
func ID(e Embedder) string {
	if id, ok := e.(Identifier); ok {
		return id.ID()
	}
	return "unknown"
}

func embeddingErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrEmbedding, fmt.Sprintf(format, args...))
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return embeddingErr("text is empty")
	}
	return nil
}

// dimChecked rejects vectors whose length differs from dim.
type dimChecked struct {
	next Embedder
	dim  int
}

func (d *dimChecked) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := d.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != d.dim {
		return nil, embeddingErr("vector has dimension %d, want %d", len(vec), d.dim)
	}
	return vec, nil
}

func (d *dimChecked) ID() string { return ID(d.next) }

// WithDimension enforces dim on every vector e returns. A dim of zero
// returns e unchanged.
func WithDimension(e Embedder, dim int) Embedder {
	if dim <= 0 {
		return e
	}
	return &dimChecked{next: e, dim: dim}
}

// New builds the configured embedder, wrapped with the dimension check and
// caches.
func New(ctx context.Context, cfg types.EmbeddingConfig, log *logrus.Logger) (Embedder, error) {
	log = logging.OrDiscard(log)

	var base Embedder
	switch cfg.Backend {
	case types.EmbeddingHash, "":
		base = NewHashEmbedder(cfg.Dimension)
	case types.EmbeddingHTTP:
		base = &HTTPEmbedder{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Config:  cfg.HTTPConfig,
			Logger:  log,
		}
	case types.EmbeddingBedrock:
		b, err := NewBedrockEmbedderFromRegion(ctx, cfg.Region, cfg.Model)
		if err != nil {
			return nil, err
		}
		base = b
	default:
		return nil, fmt.Errorf("unknown embedding backend %q: use hash, http, or bedrock", cfg.Backend)
	}

	e := WithDimension(base, cfg.Dimension)

	var shared Cache
	if cfg.RedisURL != "" {
		rc, err := NewRedisCacheFromURL(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		shared = rc
	}
	if cfg.CacheSize > 0 || shared != nil {
		return NewCached(e, CacheOptions{Size: cfg.CacheSize, Shared: shared, Logger: log})
	}
	return e, nil
}
