package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoises embeddings by text. Dedup checks and similarity
// lookups often embed the same sentence within a few seconds of each other.
type CachedProvider struct {
	next  EmbeddingProvider
	cache *cache.Cache
}

func NewCachedProvider(next EmbeddingProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (p *CachedProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if v, found := p.cache.Get(key); found {
		return v.([]float32), nil
	}

	vec, err := p.next.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(key, vec)
	return vec, nil
}

func (p *CachedProvider) Dimensions() int {
	return p.next.Dimensions()
}
