// Package chromem is an embedded memory.Store on top of chromem-go. Each
// (scope, owner) pair gets its own collection.
package chromem

import (
	"ai-memory-chat-be/pkg/embedding"
	"ai-memory-chat-be/pkg/memory"
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

type ChromemStore struct {
	db          *chromem.DB
	embedder    embedding.EmbeddingProvider
	collections map[string]*chromem.Collection
	mu          sync.RWMutex

	// vectorLen is the length of the vectors actually stored, which can
	// differ from embedder.Dimensions() when the model ignores the setting.
	vectorLen atomic.Int64
}

var _ memory.Store = &ChromemStore{}

func New(embedder embedding.EmbeddingProvider) *ChromemStore {
	return &ChromemStore{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

func collectionName(scope memory.Scope, ownerKey string) string {
	return fmt.Sprintf("%s_%s", scope, ownerKey)
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Generate(ctx, text)
	}
}

func (s *ChromemStore) getOrCreateCollection(scope memory.Scope, ownerKey string) (*chromem.Collection, error) {
	name := collectionName(scope, ownerKey)

	s.mu.RLock()
	col, exists := s.collections[name]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, exists := s.collections[name]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, map[string]string{
		"scope":     string(scope),
		"owner_key": ownerKey,
	}, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemStore) Insert(ctx context.Context, rec memory.Record) error {
	col, err := s.getOrCreateCollection(rec.Scope, rec.OwnerKey)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Generate(ctx, rec.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	s.vectorLen.Store(int64(len(vec)))

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: vec,
		Metadata: map[string]string{
			"category":   string(rec.Category),
			"importance": string(rec.Importance),
			"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, scope memory.Scope, ownerKey, query string, threshold float64, limit int) ([]memory.ScoredRecord, error) {
	col, err := s.getOrCreateCollection(scope, ownerKey)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if limit <= 0 || n == 0 {
		return []memory.ScoredRecord{}, nil
	}
	if limit < n {
		n = limit
	}

	queryEmbedding, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, queryEmbedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.ScoredRecord, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < threshold {
			continue
		}
		hits = append(hits, memory.ScoredRecord{
			Record: toRecord(scope, ownerKey, r),
			Score:  float64(r.Similarity),
		})
	}
	return hits, nil
}

// ListRecent enumerates the collection with a probe vector. chromem-go has no
// listing call, but a query with nResults equal to the document count
// returns every document.
func (s *ChromemStore) ListRecent(ctx context.Context, scope memory.Scope, ownerKey string, limit int) ([]memory.Record, error) {
	col, err := s.getOrCreateCollection(scope, ownerKey)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 {
		return []memory.Record{}, nil
	}

	results, err := col.QueryEmbedding(ctx, s.probe(), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem enumerate: %w", err)
	}

	records := make([]memory.Record, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(scope, ownerKey, r))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *ChromemStore) probe() []float32 {
	dims := int(s.vectorLen.Load())
	if dims <= 0 {
		dims = s.embedder.Dimensions()
	}
	if dims <= 0 {
		dims = 1
	}
	v := make([]float32, dims)
	v[0] = 1
	return v
}

func (s *ChromemStore) DeleteAll(_ context.Context, scope memory.Scope, ownerKey string) error {
	name := collectionName(scope, ownerKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, name)
	return nil
}

func (s *ChromemStore) Count(_ context.Context, scope memory.Scope, ownerKey string) (int, error) {
	col, err := s.getOrCreateCollection(scope, ownerKey)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

func (s *ChromemStore) Delete(ctx context.Context, scope memory.Scope, ownerKey, id string) error {
	col, err := s.getOrCreateCollection(scope, ownerKey)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func toRecord(scope memory.Scope, ownerKey string, r chromem.Result) memory.Record {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	return memory.Record{
		ID:         r.ID,
		Scope:      scope,
		OwnerKey:   ownerKey,
		Content:    r.Content,
		Category:   memory.NormalizeCategory(r.Metadata["category"]),
		Importance: memory.NormalizeImportance(r.Metadata["importance"]),
		CreatedAt:  createdAt,
	}
}
