// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pdiddy/trialmatch/pkg/types"
)

const defaultTitanModel = "amazon.titan-embed-text-v2:0"

// InvokeModelAPI is the subset of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder embeds text with an Amazon Titan model.
type BedrockEmbedder struct {
	api   InvokeModelAPI
	model string
}

// NewBedrockEmbedder wraps an existing runtime client.
func NewBedrockEmbedder(api InvokeModelAPI, model string) *BedrockEmbedder {
	if strings.TrimSpace(model) == "" {
		model = defaultTitanModel
	}
	return &BedrockEmbedder{api: api, model: model}
}

// NewBedrockEmbedderFromRegion loads the default AWS credential chain.
func NewBedrockEmbedderFromRegion(ctx context.Context, region, model string) (*BedrockEmbedder, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), model), nil
}

// ID implements Identifier.
func (b *BedrockEmbedder) ID() string { return "bedrock:" + b.model }

// Embed implements Embedder.
func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]any{"inputText": text})
	if err != nil {
		return nil, embeddingErr("marshaling request: %v", err)
	}

	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bedrock invoke: %w", types.ErrEmbedding, err)
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, embeddingErr("parsing bedrock response: %v", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, embeddingErr("bedrock response was empty")
	}
	return toFloat32(decoded.Embedding), nil
}
