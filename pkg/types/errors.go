// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Sentinel errors shared across stages. Callers wrap them with %w and
// classify with errors.Is.
var (
	// ErrRetrieval means the corpus index is empty or unavailable.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrEmbedding means text could not be embedded (empty input or
	// unreachable backend).
	ErrEmbedding = errors.New("embedding failed")

	// ErrLLMInvocation covers every failure of a completion call. It is
	// always accompanied by one of ErrTimeout, ErrRateLimited, ErrProvider.
	ErrLLMInvocation = errors.New("llm invocation failed")
	ErrTimeout       = errors.New("timeout")
	ErrRateLimited   = errors.New("rate limited")
	ErrProvider      = errors.New("provider error")

	// ErrParse means a model response matched none of the protocol headers.
	ErrParse = errors.New("unrecognized response format")

	// ErrMissingData means the profile lacks a field a search target needs.
	// Resolvers treat it as "no finding"; it never escapes a resolver.
	ErrMissingData = errors.New("missing profile data")

	// ErrNotFound is returned by lookups for unknown trial or patient IDs.
	ErrNotFound = errors.New("not found")
)
