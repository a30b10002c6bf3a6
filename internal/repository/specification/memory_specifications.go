package specification

import "gorm.io/gorm"

type ByScopeOwner struct {
	Scope    string
	OwnerKey string
}

func (s ByScopeOwner) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("scope = ? AND owner_key = ?", s.Scope, s.OwnerKey)
}
