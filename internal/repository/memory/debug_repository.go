package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DebugInfo is the diagnostic payload of the last turn of a chat.
type DebugInfo struct {
	RawContent string    `json:"raw_content"`
	ParseError string    `json:"parse_error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DebugRepository keeps the latest DebugInfo per chat for an hour.
type DebugRepository struct {
	cache *cache.Cache
}

func NewDebugRepository() *DebugRepository {
	return &DebugRepository{
		cache: cache.New(1*time.Hour, 10*time.Minute),
	}
}

func (r *DebugRepository) Save(chatID uuid.UUID, info *DebugInfo) {
	r.cache.Set(chatID.String(), info, cache.DefaultExpiration)
}

func (r *DebugRepository) Get(chatID uuid.UUID) (*DebugInfo, bool) {
	if x, found := r.cache.Get(chatID.String()); found {
		return x.(*DebugInfo), true
	}
	return nil, false
}

func (r *DebugRepository) Delete(chatID uuid.UUID) {
	r.cache.Delete(chatID.String())
}
