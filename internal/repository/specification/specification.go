package specification

import "gorm.io/gorm"

// Specification narrows or orders a chat, message or memory record query.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
