package implementation

import (
	"context"

	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/mapper"
	"ai-memory-chat-be/internal/model"
	"ai-memory-chat-be/internal/repository/contract"
	"ai-memory-chat-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type MemoryRecordRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.MemoryRecordMapper
}

func NewMemoryRecordRepository(db *gorm.DB) contract.MemoryRecordRepository {
	return &MemoryRecordRepositoryImpl{
		db:     db,
		mapper: mapper.NewMemoryRecordMapper(),
	}
}

func (r *MemoryRecordRepositoryImpl) Create(ctx context.Context, record *entity.MemoryRecord) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *MemoryRecordRepositoryImpl) Delete(ctx context.Context, id uuid.UUID, specs ...specification.Specification) error {
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	return query.Delete(&model.MemoryRecord{}, id).Error
}

func (r *MemoryRecordRepositoryImpl) DeleteAll(ctx context.Context, specs ...specification.Specification) error {
	if len(specs) == 0 {
		return gorm.ErrMissingWhereClause
	}
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	return query.Delete(&model.MemoryRecord{}).Error
}

func (r *MemoryRecordRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.MemoryRecord, error) {
	var models []*model.MemoryRecord
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.MemoryRecord, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *MemoryRecordRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.MemoryRecord{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MemoryRecordRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, threshold float64, limit int, specs ...specification.Specification) ([]*entity.ScoredMemoryRecord, error) {
	if limit <= 0 {
		return []*entity.ScoredMemoryRecord{}, nil
	}

	// pgvector's <=> is cosine distance, so similarity is 1 - distance.
	type result struct {
		model.MemoryRecord
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)
	query := r.db.WithContext(ctx).
		Table("memory_records").
		Select("memory_records.*, 1 - (embedding <=> ?) as similarity", queryVector)
	query = applySpecifications(query, specs...)

	err := query.
		Where("1 - (embedding <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredMemoryRecord, len(results))
	for i := range results {
		scored[i] = &entity.ScoredMemoryRecord{
			Record:     r.mapper.ToEntity(&results[i].MemoryRecord),
			Similarity: results[i].Similarity,
		}
	}
	return scored, nil
}
