package contract

import (
	"context"

	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MemoryRecordRepository interface {
	Create(ctx context.Context, record *entity.MemoryRecord) error
	Delete(ctx context.Context, id uuid.UUID, specs ...specification.Specification) error
	DeleteAll(ctx context.Context, specs ...specification.Specification) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.MemoryRecord, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchSimilar ranks by cosine similarity and drops rows below threshold.
	SearchSimilar(ctx context.Context, embedding []float32, threshold float64, limit int, specs ...specification.Specification) ([]*entity.ScoredMemoryRecord, error)
}
