package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Seq breaks created_at ties so a transcript keeps insertion order.
type Message struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	Role      string         `gorm:"type:varchar(16);not null"`
	Content   string         `gorm:"type:text;not null"`
	Seq       int64          `gorm:"type:bigserial;<-:false;index"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}
