// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve ranks indexed trials against a query vector by cosine
// similarity and loads the top candidates from the corpus.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/corpus"
	"github.com/pdiddy/trialmatch/internal/embed"
	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Index is the read side of the trial corpus.
type Index interface {
	Entries(ctx context.Context) ([]corpus.Entry, error)
	Get(ctx context.Context, id string) (types.TrialRecord, error)
}

// Scored is a trial identifier with its similarity to the query.
type Scored struct {
	TrialID string
	Score   float64
}

// Retriever finds candidate trials for a query.
type Retriever struct {
	Index    Index
	Embedder embed.Embedder
	Logger   *logrus.Logger
	Metrics  *metrics.PipelineMetrics
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm. Callers guarantee equal lengths.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores entries against query and returns at most topN, highest
// first. Ties keep entry order. Entries whose dimension differs from the
// query are skipped and counted; repeated trial IDs keep their first entry.
func Rank(query []float32, entries []corpus.Entry, topN int) (ranked []Scored, skipped int) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.TrialID] {
			continue
		}
		if len(e.Vector) != len(query) {
			skipped++
			continue
		}
		seen[e.TrialID] = true
		ranked = append(ranked, Scored{TrialID: e.TrialID, Score: Cosine(query, e.Vector)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, skipped
}

// Search returns the topN most similar trial identifiers.
func (r *Retriever) Search(ctx context.Context, vector []float32, topN int) ([]Scored, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("%w: top-n must be positive, got %d", types.ErrRetrieval, topN)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", types.ErrRetrieval)
	}

	start := time.Now()
	entries, err := r.Index.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRetrieval, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: corpus index is empty", types.ErrRetrieval)
	}

	ranked, skipped := Rank(vector, entries, topN)
	r.Metrics.ObserveRetrieval(time.Since(start).Seconds())
	log := logging.OrDiscard(r.Logger)
	if skipped > 0 {
		log.WithFields(logrus.Fields{
			"skipped":   skipped,
			"dimension": len(vector),
		}).Warn("skipped indexed vectors with mismatched dimension")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: no indexed vector matches query dimension %d", types.ErrRetrieval, len(vector))
	}
	return ranked, nil
}

// Retrieve ranks the corpus and loads the full records. Candidates carry
// 1-based ranks in score order.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, topN int) ([]types.Candidate, error) {
	ranked, err := r.Search(ctx, vector, topN)
	if err != nil {
		return nil, err
	}

	log := logging.OrDiscard(r.Logger)
	out := make([]types.Candidate, 0, len(ranked))
	for _, s := range ranked {
		rec, err := r.Index.Get(ctx, s.TrialID)
		if errors.Is(err, types.ErrNotFound) {
			log.WithField("trial_id", s.TrialID).Warn("ranked trial missing from corpus metadata")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrRetrieval, err)
		}
		out = append(out, types.Candidate{Record: rec, Score: s.Score, Rank: len(out) + 1})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no ranked trial could be loaded", types.ErrRetrieval)
	}
	return out, nil
}

// RetrieveText embeds query and retrieves candidates. Embedding failures
// are returned as is and wrap types.ErrEmbedding.
func (r *Retriever) RetrieveText(ctx context.Context, query string, topN int) ([]types.Candidate, error) {
	if r.Embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", types.ErrEmbedding)
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, vec, topN)
}
