// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// OpenAIBackend completes prompts through any OpenAI-compatible chat
// endpoint using an eino chat model.
type OpenAIBackend struct {
	chat model.BaseChatModel
}

// NewOpenAIBackend wraps an existing eino chat model.
func NewOpenAIBackend(chat model.BaseChatModel) *OpenAIBackend {
	return &OpenAIBackend{chat: chat}
}

// NewOpenAIBackendFromConfig builds the eino OpenAI chat model.
func NewOpenAIBackendFromConfig(ctx context.Context, baseURL, apiKey, modelName string) (*OpenAIBackend, error) {
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI chat model: %w", err)
	}
	return NewOpenAIBackend(chat), nil
}

// Complete sends prompt as one user message. Provider errors mentioning
// HTTP 429 are reported as rate limiting.
func (o *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.chat.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") {
			return "", RateLimitedError(err)
		}
		return "", Classify(fmt.Errorf("openai generate: %w", err))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ProviderError(fmt.Errorf("openai response contained no text"))
	}
	return resp.Content, nil
}
