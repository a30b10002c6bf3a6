package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashProvider produces deterministic pseudo-random unit vectors seeded by an
// FNV hash of the text. Identical text gives identical vectors, unrelated
// text is close to orthogonal. Used offline and in tests.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Generate(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimensions)
	for i := range vec {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalizeVector(vec), nil
}

func (p *HashProvider) Dimensions() int {
	return p.dimensions
}
