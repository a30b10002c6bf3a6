package chromem

import (
	"ai-memory-chat-be/pkg/embedding"
	"ai-memory-chat-be/pkg/memory"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(scope memory.Scope, owner, content string, createdAt time.Time) memory.Record {
	return memory.Record{
		ID:         uuid.NewString(),
		Scope:      scope,
		OwnerKey:   owner,
		Content:    content,
		Category:   memory.CategoryPreferences,
		Importance: memory.ImportanceMedium,
		CreatedAt:  createdAt,
	}
}

func TestChromemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(embedding.NewHashProvider(32))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := newRecord(memory.ScopeUser, "u1", "Likes green tea", base)
	second := newRecord(memory.ScopeUser, "u1", "Plays the cello", base.Add(time.Minute))
	require.NoError(t, s.Insert(ctx, first))
	require.NoError(t, s.Insert(ctx, second))
	require.NoError(t, s.Insert(ctx, newRecord(memory.ScopeSession, "s1", "Asked about Lisbon", base)))

	n, err := s.Count(ctx, memory.ScopeUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := s.ListRecent(ctx, memory.ScopeUser, "u1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
	assert.Equal(t, first.ID, recent[1].ID)
	assert.True(t, recent[1].CreatedAt.Equal(base))
	assert.Equal(t, memory.CategoryPreferences, recent[1].Category)

	limited, err := s.ListRecent(ctx, memory.ScopeUser, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	hits, err := s.Search(ctx, memory.ScopeUser, "u1", "Likes green tea", 0.7, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, first.ID, hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)

	require.NoError(t, s.Delete(ctx, memory.ScopeUser, "u1", first.ID))
	n, _ = s.Count(ctx, memory.ScopeUser, "u1")
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteAll(ctx, memory.ScopeUser, "u1"))
	n, _ = s.Count(ctx, memory.ScopeUser, "u1")
	assert.Equal(t, 0, n)

	n, _ = s.Count(ctx, memory.ScopeSession, "s1")
	assert.Equal(t, 1, n)
}

func TestChromemStoreEmptyCollections(t *testing.T) {
	ctx := context.Background()
	s := New(embedding.NewHashProvider(8))

	hits, err := s.Search(ctx, memory.ScopeUser, "nobody", "anything", 0.7, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	recent, err := s.ListRecent(ctx, memory.ScopeSession, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	assert.NoError(t, s.DeleteAll(ctx, memory.ScopeSession, "never-created"))
}

// shortEmbedder advertises a larger size than the vectors it returns, the way
// a model that ignores the configured dimension does.
type shortEmbedder struct {
	embedding.EmbeddingProvider
}

func (shortEmbedder) Dimensions() int { return 1536 }

func TestChromemStoreEnumeratesWhenDimensionsMisreported(t *testing.T) {
	ctx := context.Background()
	s := New(shortEmbedder{EmbeddingProvider: embedding.NewHashProvider(16)})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, content := range []string{"Likes green tea", "Plays the cello", "Lives in Porto"} {
		require.NoError(t, s.Insert(ctx, newRecord(memory.ScopeUser, "u1", content, base.Add(time.Duration(i)*time.Minute))))
	}

	recent, err := s.ListRecent(ctx, memory.ScopeUser, "u1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "Lives in Porto", recent[0].Content)

	hits, err := s.Search(ctx, memory.ScopeUser, "u1", "Plays the cello", 0.7, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Plays the cello", hits[0].Content)
}
