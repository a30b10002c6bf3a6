package entity

import (
	"time"

	"github.com/google/uuid"
)

type MemoryRecord struct {
	Id         uuid.UUID
	Scope      string
	OwnerKey   string
	Content    string
	Category   string
	Importance string
	Embedding  []float32
	Metadata   map[string]interface{}
	CreatedAt  time.Time
}

// ScoredMemoryRecord pairs a record with its cosine similarity to a query.
type ScoredMemoryRecord struct {
	Record     *MemoryRecord
	Similarity float64
}
