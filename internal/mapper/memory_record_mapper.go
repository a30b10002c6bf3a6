package mapper

import (
	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type MemoryRecordMapper struct{}

func NewMemoryRecordMapper() *MemoryRecordMapper {
	return &MemoryRecordMapper{}
}

func (m *MemoryRecordMapper) ToEntity(r *model.MemoryRecord) *entity.MemoryRecord {
	if r == nil {
		return nil
	}
	return &entity.MemoryRecord{
		Id:         r.Id,
		Scope:      r.Scope,
		OwnerKey:   r.OwnerKey,
		Content:    r.Content,
		Category:   r.Category,
		Importance: r.Importance,
		Embedding:  r.Embedding.Slice(),
		Metadata:   map[string]interface{}(r.Metadata),
		CreatedAt:  r.CreatedAt,
	}
}

func (m *MemoryRecordMapper) ToModel(r *entity.MemoryRecord) *model.MemoryRecord {
	if r == nil {
		return nil
	}
	return &model.MemoryRecord{
		Id:         r.Id,
		Scope:      r.Scope,
		OwnerKey:   r.OwnerKey,
		Content:    r.Content,
		Category:   r.Category,
		Importance: r.Importance,
		Embedding:  pgvector.NewVector(r.Embedding),
		Metadata:   datatypes.JSONMap(r.Metadata),
		CreatedAt:  r.CreatedAt,
	}
}
