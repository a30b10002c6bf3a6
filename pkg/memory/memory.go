// Package memory keeps per-user and per-session facts for a chat assistant,
// bounded by capacity with importance-then-age eviction.
package memory

import (
	"context"
	"regexp"
	"strings"
	"time"
)

type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeSession Scope = "session"
)

func ParseScope(s string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUser:
		return ScopeUser, true
	case ScopeSession:
		return ScopeSession, true
	}
	return "", false
}

type Category string

const (
	CategoryPersonalFacts Category = "personal_facts"
	CategoryPreferences   Category = "preferences"
	CategoryGoals         Category = "goals"
	CategoryEvents        Category = "events"
	CategorySkills        Category = "skills"
	CategoryProjects      Category = "projects"
	CategoryName          Category = "name"
	CategoryFriends       Category = "friends"
	CategoryFamily        Category = "family"
)

// Categories lists every category in prompt rendering order.
var Categories = []Category{
	CategoryName,
	CategoryPersonalFacts,
	CategoryFamily,
	CategoryFriends,
	CategoryPreferences,
	CategoryGoals,
	CategoryProjects,
	CategorySkills,
	CategoryEvents,
}

func NormalizeCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryPersonalFacts
}

// Title is the heading used when rendering the category in a prompt.
func (c Category) Title() string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

func NormalizeImportance(s string) Importance {
	switch Importance(strings.ToLower(strings.TrimSpace(s))) {
	case ImportanceHigh:
		return ImportanceHigh
	case ImportanceLow:
		return ImportanceLow
	}
	return ImportanceMedium
}

// Rank orders importance tiers: low < medium < high.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 2
	case ImportanceLow:
		return 0
	}
	return 1
}

type Record struct {
	ID         string     `json:"id"`
	Scope      Scope      `json:"scope"`
	OwnerKey   string     `json:"owner_key"`
	Content    string     `json:"content"`
	Category   Category   `json:"category"`
	Importance Importance `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ScoredRecord is a search hit. Score is cosine similarity in [-1, 1].
type ScoredRecord struct {
	Record
	Score float64 `json:"score"`
}

// Candidate is an extracted fact before validation. Type selects the scope:
// "session" stores into the session scope, anything else into the user scope.
type Candidate struct {
	Content    string `json:"content"`
	Category   string `json:"category,omitempty"`
	Importance string `json:"importance,omitempty"`
	Type       string `json:"type,omitempty"`
}

func (c Candidate) scope() Scope {
	if strings.EqualFold(strings.TrimSpace(c.Type), string(ScopeSession)) {
		return ScopeSession
	}
	return ScopeUser
}

// Owner identifies whose memories an operation touches.
type Owner struct {
	UserKey    string
	SessionKey string
}

func (o Owner) keyFor(scope Scope) string {
	if scope == ScopeSession {
		return o.SessionKey
	}
	return o.UserKey
}

// Store is the vector storage backend. Implementations embed content on
// Insert and query text on Search themselves.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Search(ctx context.Context, scope Scope, ownerKey, query string, threshold float64, limit int) ([]ScoredRecord, error)
	// ListRecent returns newest first. limit <= 0 returns everything.
	ListRecent(ctx context.Context, scope Scope, ownerKey string, limit int) ([]Record, error)
	DeleteAll(ctx context.Context, scope Scope, ownerKey string) error
	Count(ctx context.Context, scope Scope, ownerKey string) (int, error)
	Delete(ctx context.Context, scope Scope, ownerKey, id string) error
}

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	trailingPunctRun = regexp.MustCompile(`[\p{P}\s]+$`)
)

// NormalizeContent is the key used for duplicate detection: lowercase,
// collapsed whitespace, no trailing punctuation.
func NormalizeContent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, " ")
	return trailingPunctRun.ReplaceAllString(s, "")
}
