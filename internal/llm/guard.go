// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pdiddy/trialmatch/internal/logging"
	"github.com/pdiddy/trialmatch/internal/observability/metrics"
	"github.com/pdiddy/trialmatch/pkg/types"
)

const defaultTimeout = 90 * time.Second

// GuardOptions configures a Guard.
type GuardOptions struct {
	// Name labels logs, metrics, and the circuit breaker (e.g. "anthropic").
	Name string

	// Timeout bounds each call independently (default 90s).
	Timeout time.Duration

	// RequestsPerMinute bounds the call rate; 0 disables the limiter.
	RequestsPerMinute int

	// Burst is the limiter burst (default 1).
	Burst int

	Logger  *logrus.Logger
	Metrics *metrics.PipelineMetrics
}

// Guard decorates a Completer with a per-call timeout, a rate limiter, and
// a circuit breaker. It never retries: a failed call is returned to the
// caller classified as timeout, rate limit, or provider error.
type Guard struct {
	next    Completer
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
	metrics *metrics.PipelineMetrics
}

// NewGuard wraps next.
func NewGuard(next Completer, opts GuardOptions) *Guard {
	if opts.Name == "" {
		opts.Name = "llm"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	log := logging.OrDiscard(opts.Logger)

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Timeouts are per-call budgets, not evidence of an unhealthy provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, types.ErrTimeout)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("LLM circuit breaker changed state")
		},
	})

	return &Guard{
		next:    next,
		name:    opts.Name,
		timeout: opts.Timeout,
		limiter: limiter,
		breaker: breaker,
		log:     log,
		metrics: opts.Metrics,
	}
}

// Complete runs one guarded call.
func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.complete(ctx, prompt)
	elapsed := time.Since(start)

	g.metrics.ObserveLLMCall(g.name, Outcome(err), elapsed.Seconds())
	entry := g.log.WithFields(logrus.Fields{
		"backend":  g.name,
		"duration": elapsed.Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("LLM call failed")
	} else {
		entry.Debug("LLM call completed")
	}
	return text, err
}

func (g *Guard) complete(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("waiting for rate limiter: %w", err)
			// Wait fails early when the deadline cannot accommodate the delay.
			if errors.Is(ctx.Err(), context.Canceled) {
				return "", ProviderError(err)
			}
			return "", TimeoutError(err)
		}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.next.Complete(ctx, prompt)
		if err != nil {
			switch {
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				return nil, TimeoutError(err)
			case errors.Is(ctx.Err(), context.Canceled):
				return nil, ProviderError(fmt.Errorf("call cancelled: %w", err))
			}
			return nil, Classify(err)
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ProviderError(fmt.Errorf("%s: %w", g.name, err))
		}
		return "", err
	}
	return out.(string), nil
}
