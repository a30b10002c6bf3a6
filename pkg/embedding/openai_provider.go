package embedding

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client     *goopenai.Client
	model      goopenai.EmbeddingModel
	dimensions int
}

func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int) *OpenAIProvider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(goopenai.AdaEmbeddingV2)
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIProvider{
		client:     goopenai.NewClientWithConfig(cfg),
		model:      goopenai.EmbeddingModel(model),
		dimensions: dimensions,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned an empty embedding")
	}
	return normalizeVector(resp.Data[0].Embedding), nil
}

func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}
