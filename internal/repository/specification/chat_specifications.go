package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatID struct {
	ChatID uuid.UUID
}

func (s ByChatID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_id = ?", s.ChatID)
}

// ExcludeRoles drops messages whose role is in Roles.
type ExcludeRoles struct {
	Roles []string
}

func (s ExcludeRoles) Apply(db *gorm.DB) *gorm.DB {
	if len(s.Roles) == 0 {
		return db
	}
	return db.Where("role NOT IN ?", s.Roles)
}

// TranscriptOrder is the canonical message order.
type TranscriptOrder struct{}

func (s TranscriptOrder) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("seq ASC")
}
