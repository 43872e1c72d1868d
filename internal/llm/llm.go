// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the narrow text-completion capability the analyzer
// depends on. Backends (Anthropic Messages over HTTP, Bedrock Converse,
// OpenAI-compatible chat through eino) implement Completer; Guard wraps any
// backend with a per-call timeout, a request-rate limiter, a circuit
// breaker, and error classification into the shared taxonomy.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// Completer turns a prompt into model text. Implementations must honor ctx
// cancellation; the deadline on ctx is the call timeout.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// invocationError carries ErrLLMInvocation, a kind (ErrTimeout,
// ErrRateLimited, ErrProvider), and the underlying cause.
type invocationError struct {
	kind  error
	cause error
}

func (e *invocationError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%v: %v", types.ErrLLMInvocation, e.kind)
	}
	return fmt.Sprintf("%v: %v: %v", types.ErrLLMInvocation, e.kind, e.cause)
}

func (e *invocationError) Unwrap() []error {
	if e.cause == nil {
		return []error{types.ErrLLMInvocation, e.kind}
	}
	return []error{types.ErrLLMInvocation, e.kind, e.cause}
}

// TimeoutError wraps cause as an LLM timeout.
func TimeoutError(cause error) error {
	return &invocationError{kind: types.ErrTimeout, cause: cause}
}

// RateLimitedError wraps cause as an LLM rate-limit failure.
func RateLimitedError(cause error) error {
	return &invocationError{kind: types.ErrRateLimited, cause: cause}
}

// ProviderError wraps cause as a generic provider failure.
func ProviderError(cause error) error {
	return &invocationError{kind: types.ErrProvider, cause: cause}
}

// Classify maps an arbitrary backend error into the taxonomy. Errors that
// already carry ErrLLMInvocation are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrLLMInvocation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError(err)
	default:
		return ProviderError(err)
	}
}

// Outcome returns a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, types.ErrRateLimited):
		return "rate_limited"
	default:
		return "provider_error"
	}
}
