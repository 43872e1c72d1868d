// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/trialmatch/internal/httputil"
	"github.com/pdiddy/trialmatch/pkg/types"
)

const defaultEmbeddingBaseURL = "https://api.openai.com/v1"

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	BaseURL string
	APIKey  string
	Model   string
	Config  types.HTTPConfig
	Client  *http.Client
	Logger  *logrus.Logger
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// ID implements Identifier.
func (h *HTTPEmbedder) ID() string { return "http:" + h.Model }

// Embed implements Embedder. Throttled responses are retried with backoff.
func (h *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	base := strings.TrimRight(h.BaseURL, "/")
	if base == "" {
		base = defaultEmbeddingBaseURL
	}
	body, err := json.Marshal(embeddingRequest{Model: h.Model, Input: text})
	if err != nil {
		return nil, embeddingErr("marshaling request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, embeddingErr("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}
	if h.Config.UserAgent != "" {
		req.Header.Set("User-Agent", h.Config.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: h.Config.Timeout}
	}
	retrier := &httputil.Retrier{Client: client, Logger: h.Logger}

	resp, err := retrier.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbedding, err)
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbedding, err)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, embeddingErr("decoding response: %v", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, embeddingErr("response contained no embedding")
	}
	return toFloat32(decoded.Data[0].Embedding), nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}
