// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genomic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pdiddy/trialmatch/internal/httputil"
	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/resolve"
	"github.com/pdiddy/trialmatch/pkg/types"
)

// Default delta-likelihood thresholds.
const (
	DefaultPathogenicThreshold = -7.0
	DefaultBenignThreshold     = -2.0
)

// VEPResolverName identifies the external predictor resolver in evidence.
const VEPResolverName = "external_vep"

// VariantEffectPredictor scores a protein change. More negative deltas mean
// the variant is less likely under the model and more likely damaging.
type VariantEffectPredictor interface {
	DeltaLikelihood(ctx context.Context, gene, proteinChange string) (float64, error)
}

// VEPClient calls a variant-effect-prediction service over HTTP. The
// service accepts {"gene","protein_change"} and answers
// {"delta_likelihood": <float>}.
type VEPClient struct {
	url     string
	apiKey  string
	retrier *httputil.Retrier
	breaker *gobreaker.CircuitBreaker
}

// NewVEPClient returns a client for url. client may be nil.
func NewVEPClient(url, apiKey string, client *http.Client, log *logrus.Logger) *VEPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log = logging.OrDiscard(log)
	return &VEPClient{
		url:     url,
		apiKey:  apiKey,
		retrier: &httputil.Retrier{Client: client, Logger: log},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "vep",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("VEP circuit breaker changed state")
			},
		}),
	}
}

type vepRequest struct {
	Gene          string `json:"gene"`
	ProteinChange string `json:"protein_change"`
}

type vepResponse struct {
	DeltaLikelihood *float64 `json:"delta_likelihood"`
}

// DeltaLikelihood implements VariantEffectPredictor.
func (c *VEPClient) DeltaLikelihood(ctx context.Context, gene, proteinChange string) (float64, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, gene, proteinChange)
	})
	if err != nil {
		return 0, fmt.Errorf("vep %s %s: %w", gene, proteinChange, err)
	}
	return out.(float64), nil
}

func (c *VEPClient) call(ctx context.Context, gene, proteinChange string) (float64, error) {
	body, err := json.Marshal(vepRequest{Gene: gene, ProteinChange: proteinChange})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.retrier.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus(resp); err != nil {
		return 0, err
	}

	var decoded vepResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if decoded.DeltaLikelihood == nil {
		return 0, errors.New("response has no delta_likelihood")
	}
	return *decoded.DeltaLikelihood, nil
}

// VEPClassifier refines VUS results of Base with a predictor. Prediction
// failures fall back to the base classification.
type VEPClassifier struct {
	Base                Classifier
	Predictor           VariantEffectPredictor
	PathogenicThreshold float64
	BenignThreshold     float64
	Logger              *logrus.Logger
}

// Classify implements Classifier.
func (v VEPClassifier) Classify(ctx context.Context, m types.Mutation) (Classification, string) {
	base := v.Base
	if base == nil {
		base = RuleClassifier{}
	}
	class, rule := base.Classify(ctx, m)
	if class != ClassVUS || v.Predictor == nil || strings.TrimSpace(m.ProteinChange) == "" {
		return class, rule
	}

	gene := canonicalGene(m.Gene)
	change := normalizeChange(gene, m.ProteinChange)
	delta, err := v.Predictor.DeltaLikelihood(ctx, gene, change)
	if err != nil {
		logging.OrDiscard(v.Logger).WithFields(logrus.Fields{
			"gene":   gene,
			"change": change,
		}).WithError(err).Warn("Variant effect prediction failed, keeping rule classification")
		return class, rule
	}

	switch {
	case delta <= v.PathogenicThreshold:
		return ClassPathogenic, RuleExternalVEP
	case delta >= v.BenignThreshold:
		return ClassBenign, RuleExternalVEP
	}
	return ClassVUS, RuleExternalVEP
}

// VEPResolver settles genomic criteria the rule resolver left UNCLEAR by
// consulting an external predictor for variants of uncertain significance.
type VEPResolver struct {
	policy resolve.Policy
	interp Interpreter
	log    *logrus.Logger
}

// NewVEPResolver builds the resolver from configuration. It returns nil
// when no VEP URL is configured.
func NewVEPResolver(cfg types.GenomicConfig, policy resolve.Policy, log *logrus.Logger) *VEPResolver {
	if strings.TrimSpace(cfg.VEPURL) == "" {
		return nil
	}
	return NewVEPResolverWith(NewVEPClient(cfg.VEPURL, cfg.VEPAPIKey, nil, log), cfg, policy, log)
}

// NewVEPResolverWith uses an existing predictor. Zero thresholds take the
// defaults.
func NewVEPResolverWith(p VariantEffectPredictor, cfg types.GenomicConfig, policy resolve.Policy, log *logrus.Logger) *VEPResolver {
	if cfg.PathogenicThreshold == 0 {
		cfg.PathogenicThreshold = DefaultPathogenicThreshold
	}
	if cfg.BenignThreshold == 0 {
		cfg.BenignThreshold = DefaultBenignThreshold
	}
	log = logging.OrDiscard(log)
	return &VEPResolver{
		policy: policy,
		interp: Interpreter{Classifier: VEPClassifier{
			Base:                RuleClassifier{},
			Predictor:           p,
			PathogenicThreshold: cfg.PathogenicThreshold,
			BenignThreshold:     cfg.BenignThreshold,
			Logger:              log,
		}},
		log: log,
	}
}

// Name implements resolve.CriterionResolver.
func (r *VEPResolver) Name() string { return VEPResolverName }

// Resolve implements resolve.CriterionResolver.
func (r *VEPResolver) Resolve(ctx context.Context, a types.CriterionAssessment, p types.PatientProfile) types.CriterionAssessment {
	if a.Status.Resolved() {
		return a
	}
	out := r.interp.Interpret(ctx, a.Criterion.Text, p.Mutations)
	next := r.policy.Apply(a, VEPResolverName, out)
	logResolution(r.log, VEPResolverName, a, next)
	return next
}
