package embedding

import (
	"context"
	"fmt"
	"math"
)

// EmbeddingProvider turns text into a unit-length vector.
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type ProviderConfig struct {
	Provider      string // "openai", "ollama" or "hash"
	Model         string
	Dimensions    int
	APIKey        string
	OpenAIBaseURL string
	OllamaBaseURL string
	OllamaModel   string
}

func NewProvider(cfg ProviderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an API key")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Dimensions), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Dimensions), nil
	case "hash":
		return NewHashProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// normalizeVector scales vec to magnitude 1 so that cosine similarity and
// dot product agree.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
