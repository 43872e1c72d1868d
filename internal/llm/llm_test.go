// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trialmatch/pkg/types"
)

// --- classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"deadline", context.DeadlineExceeded, types.ErrTimeout},
		{"wrapped deadline", errors.Join(errors.New("x"), context.DeadlineExceeded), types.ErrTimeout},
		{"plain", errors.New("boom"), types.ErrProvider},
		{"already classified", RateLimitedError(errors.New("429")), types.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, types.ErrLLMInvocation)
			assert.ErrorIs(t, got, tt.kind)
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "timeout", Outcome(TimeoutError(nil)))
	assert.Equal(t, "rate_limited", Outcome(RateLimitedError(nil)))
	assert.Equal(t, "provider_error", Outcome(errors.New("x")))
}

// --- anthropic ---

func withAnthropicServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	orig := anthropicAPIURL
	anthropicAPIURL = ts.URL
	t.Cleanup(func() {
		anthropicAPIURL = orig
		ts.Close()
	})
	return ts
}

func TestAnthropicBackend_Success(t *testing.T) {
	withAnthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("x-api-key"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		json.NewEncoder(w).Encode(anthropicResponse{Content: []anthropicContent{
			{Type: "text", Text: "SUMMARY: "},
			{Type: "text", Text: "ok"},
		}})
	})

	b := &AnthropicBackend{APIKey: "key-123", Model: "test-model"}
	text, err := b.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "SUMMARY: ok", text)
}

func TestAnthropicBackend_RateLimited(t *testing.T) {
	withAnthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	b := &AnthropicBackend{Model: "m"}
	_, err := b.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrRateLimited)
	assert.ErrorIs(t, err, types.ErrLLMInvocation)
}

func TestAnthropicBackend_ServerError(t *testing.T) {
	withAnthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("overloaded"))
	})

	b := &AnthropicBackend{Model: "m"}
	_, err := b.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestAnthropicBackend_EmptyContent(t *testing.T) {
	withAnthropicServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	})

	b := &AnthropicBackend{Model: "m"}
	_, err := b.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrProvider)
}

// --- bedrock ---

type fakeConverse struct {
	out *bedrockruntime.ConverseOutput
	err error
	in  *bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestBedrockBackend_Success(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "MET CRITERIA:"}},
		}},
	}}
	b := NewBedrockBackend(api, "anthropic.claude-3-haiku", 0)

	text, err := b.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "MET CRITERIA:", text)
	assert.Equal(t, "anthropic.claude-3-haiku", *api.in.ModelId)
}

func TestBedrockBackend_Throttled(t *testing.T) {
	api := &fakeConverse{err: &brtypes.ThrottlingException{}}
	b := NewBedrockBackend(api, "m", 100)

	_, err := b.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, types.ErrRateLimited)
}

func TestBedrockBackend_RequiresModel(t *testing.T) {
	b := NewBedrockBackend(&fakeConverse{}, " ", 0)
	_, err := b.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, types.ErrProvider)
}

// --- openai (eino) ---

type fakeChat struct {
	resp *schema.Message
	err  error
}

func (f *fakeChat) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return f.resp, f.err
}

func (f *fakeChat) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestOpenAIBackend(t *testing.T) {
	b := NewOpenAIBackend(&fakeChat{resp: &schema.Message{Role: schema.Assistant, Content: "SUMMARY:\nfine"}})
	text, err := b.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "SUMMARY:\nfine", text)

	b = NewOpenAIBackend(&fakeChat{err: errors.New("error, status code: 429, message: slow down")})
	_, err = b.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrRateLimited)

	b = NewOpenAIBackend(&fakeChat{resp: &schema.Message{Content: "  "}})
	_, err = b.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrProvider)
}

// --- guard ---

func TestGuard_Timeout(t *testing.T) {
	slow := CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := NewGuard(slow, GuardOptions{Name: "slow", Timeout: 20 * time.Millisecond})

	_, err := g.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.ErrorIs(t, err, types.ErrLLMInvocation)
}

func TestGuard_ParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGuard(CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}), GuardOptions{Name: "cancelled", Timeout: time.Minute})

	_, err := g.Complete(ctx, "p")
	assert.ErrorIs(t, err, types.ErrLLMInvocation)
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.NotErrorIs(t, err, types.ErrTimeout)
}

func TestGuard_PassesThroughText(t *testing.T) {
	g := NewGuard(CompleterFunc(func(_ context.Context, p string) (string, error) {
		return "echo " + p, nil
	}), GuardOptions{})

	text, err := g.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "echo x", text)
}

func TestGuard_NoRetry(t *testing.T) {
	var calls int32
	g := NewGuard(CompleterFunc(func(_ context.Context, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", RateLimitedError(nil)
	}), GuardOptions{})

	_, err := g.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuard_BreakerOpens(t *testing.T) {
	var calls int32
	g := NewGuard(CompleterFunc(func(_ context.Context, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("upstream down")
	}), GuardOptions{Name: "flaky"})

	for i := 0; i < 5; i++ {
		_, err := g.Complete(context.Background(), "x")
		require.ErrorIs(t, err, types.ErrProvider)
	}
	_, err := g.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}
