// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend completes prompts through the Bedrock Converse API.
type BedrockBackend struct {
	api       ConverseAPI
	model     string
	maxTokens int32
}

// NewBedrockBackend wraps an existing Converse client.
func NewBedrockBackend(api ConverseAPI, model string, maxTokens int) *BedrockBackend {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &BedrockBackend{api: api, model: model, maxTokens: int32(maxTokens)}
}

// NewBedrockBackendFromRegion loads the default AWS credential chain for
// region and builds a runtime client.
func NewBedrockBackendFromRegion(ctx context.Context, region, model string, maxTokens int) (*BedrockBackend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewBedrockBackend(bedrockruntime.NewFromConfig(awsCfg), model, maxTokens), nil
}

// Complete sends prompt as one user message.
func (b *BedrockBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(b.model) == "" {
		return "", ProviderError(errors.New("bedrock model id is required"))
	}

	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(b.maxTokens),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		var throttled *brtypes.ThrottlingException
		if errors.As(err, &throttled) {
			return "", RateLimitedError(err)
		}
		return "", Classify(fmt.Errorf("bedrock converse: %w", err))
	}

	return converseText(out)
}

func converseText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", ProviderError(errors.New("bedrock response is nil"))
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", ProviderError(errors.New("bedrock response did not include a message output"))
	}

	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ProviderError(errors.New("bedrock response contained no text content blocks"))
	}
	return b.String(), nil
}
