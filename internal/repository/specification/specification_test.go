package specification

import (
	"testing"

	"ai-memory-chat-be/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test port=5432 sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func render(db *gorm.DB, dest interface{}, specs ...Specification) string {
	for _, s := range specs {
		db = s.Apply(db)
	}
	return db.Find(dest).Statement.SQL.String()
}

func TestMessageSpecifications(t *testing.T) {
	db := dryRunDB(t)
	sql := render(db.Model(&model.Message{}), &[]model.Message{},
		ByChatID{ChatID: uuid.New()},
		ExcludeRoles{Roles: []string{"system"}},
		TranscriptOrder{},
	)

	assert.Contains(t, sql, "chat_id = $1")
	assert.Contains(t, sql, "role NOT IN ($2)")
	assert.Contains(t, sql, "ORDER BY created_at ASC,seq ASC")
}

func TestEmptySpecificationsLeaveQueryUntouched(t *testing.T) {
	db := dryRunDB(t)
	sql := render(db.Model(&model.Message{}), &[]model.Message{}, ExcludeRoles{}, Limit{})

	assert.NotContains(t, sql, "NOT IN")
	assert.NotContains(t, sql, "LIMIT")
}

func TestMemorySpecifications(t *testing.T) {
	db := dryRunDB(t)
	sql := render(db.Model(&model.MemoryRecord{}), &[]model.MemoryRecord{},
		ByScopeOwner{Scope: "user", OwnerKey: "u1"},
		OrderBy{Field: "created_at", Desc: true},
		Limit{N: 5},
	)

	assert.Contains(t, sql, "scope = $1 AND owner_key = $2")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT")
}
