package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// MemoryRecord rows are hard deleted; eviction and clear must free capacity.
type MemoryRecord struct {
	Id         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Scope      string            `gorm:"type:varchar(16);not null;index:idx_memory_owner,priority:1"`
	OwnerKey   string            `gorm:"type:text;not null;index:idx_memory_owner,priority:2"`
	Content    string            `gorm:"type:text;not null"`
	Category   string            `gorm:"type:varchar(32);not null"`
	Importance string            `gorm:"type:varchar(16);not null"`
	Embedding  pgvector.Vector   `gorm:"type:vector"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
}

func (MemoryRecord) TableName() string {
	return "memory_records"
}
