// Package pgvector stores memories in Postgres through the repository layer,
// with cosine search on a pgvector column.
package pgvector

import (
	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/repository/specification"
	"ai-memory-chat-be/internal/repository/unitofwork"
	"ai-memory-chat-be/pkg/embedding"
	"ai-memory-chat-be/pkg/memory"
	"context"
	"fmt"

	"github.com/google/uuid"
)

type PgvectorStore struct {
	repoFactory unitofwork.RepositoryFactory
	embedder    embedding.EmbeddingProvider
}

var _ memory.Store = &PgvectorStore{}

func New(repoFactory unitofwork.RepositoryFactory, embedder embedding.EmbeddingProvider) *PgvectorStore {
	return &PgvectorStore{repoFactory: repoFactory, embedder: embedder}
}

func owned(scope memory.Scope, ownerKey string) specification.Specification {
	return specification.ByScopeOwner{Scope: string(scope), OwnerKey: ownerKey}
}

func (s *PgvectorStore) Insert(ctx context.Context, rec memory.Record) error {
	vec, err := s.embedder.Generate(ctx, rec.Content)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}

	uow := s.repoFactory.NewUnitOfWork(ctx)
	return uow.MemoryRecordRepository().Create(ctx, &entity.MemoryRecord{
		Id:         id,
		Scope:      string(rec.Scope),
		OwnerKey:   rec.OwnerKey,
		Content:    rec.Content,
		Category:   string(rec.Category),
		Importance: string(rec.Importance),
		Embedding:  vec,
		Metadata: map[string]interface{}{
			"embedding_dimensions": len(vec),
		},
		CreatedAt: rec.CreatedAt,
	})
}

func (s *PgvectorStore) Search(ctx context.Context, scope memory.Scope, ownerKey, query string, threshold float64, limit int) ([]memory.ScoredRecord, error) {
	if limit <= 0 {
		return []memory.ScoredRecord{}, nil
	}
	vec, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	uow := s.repoFactory.NewUnitOfWork(ctx)
	rows, err := uow.MemoryRecordRepository().SearchSimilar(ctx, vec, threshold, limit, owned(scope, ownerKey))
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	hits := make([]memory.ScoredRecord, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, memory.ScoredRecord{Record: toRecord(row.Record), Score: row.Similarity})
	}
	return hits, nil
}

func (s *PgvectorStore) ListRecent(ctx context.Context, scope memory.Scope, ownerKey string, limit int) ([]memory.Record, error) {
	uow := s.repoFactory.NewUnitOfWork(ctx)
	rows, err := uow.MemoryRecordRepository().FindAll(ctx,
		owned(scope, ownerKey),
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Limit{N: limit},
	)
	if err != nil {
		return nil, err
	}

	records := make([]memory.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(row))
	}
	return records, nil
}

func (s *PgvectorStore) DeleteAll(ctx context.Context, scope memory.Scope, ownerKey string) error {
	uow := s.repoFactory.NewUnitOfWork(ctx)
	return uow.MemoryRecordRepository().DeleteAll(ctx, owned(scope, ownerKey))
}

func (s *PgvectorStore) Count(ctx context.Context, scope memory.Scope, ownerKey string) (int, error) {
	uow := s.repoFactory.NewUnitOfWork(ctx)
	n, err := uow.MemoryRecordRepository().Count(ctx, owned(scope, ownerKey))
	return int(n), err
}

func (s *PgvectorStore) Delete(ctx context.Context, scope memory.Scope, ownerKey, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid memory id %q: %w", id, err)
	}
	uow := s.repoFactory.NewUnitOfWork(ctx)
	return uow.MemoryRecordRepository().Delete(ctx, parsed, owned(scope, ownerKey))
}

func toRecord(e *entity.MemoryRecord) memory.Record {
	return memory.Record{
		ID:         e.Id.String(),
		Scope:      memory.Scope(e.Scope),
		OwnerKey:   e.OwnerKey,
		Content:    e.Content,
		Category:   memory.NormalizeCategory(e.Category),
		Importance: memory.NormalizeImportance(e.Importance),
		CreatedAt:  e.CreatedAt,
	}
}
