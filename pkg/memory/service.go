package memory

import (
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/llm/completion"
	"ai-memory-chat-be/pkg/lock"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidScope      = errors.New("invalid memory scope")
	ErrUnsupportedExport = errors.New("unsupported memory export version")
)

// ExtractionError wraps any failure of the background extraction path.
// It is only ever logged.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("memory extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type Config struct {
	MaxUserMemories       int
	MaxSessionMemories    int
	SimilarityThreshold   float64
	ExtractionTemperature float64
	ExtractionMaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.MaxUserMemories <= 0 {
		c.MaxUserMemories = 100
	}
	if c.MaxSessionMemories <= 0 {
		c.MaxSessionMemories = 30
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 0.7
	}
	if c.ExtractionTemperature <= 0 {
		c.ExtractionTemperature = 0.1
	}
	if c.ExtractionMaxTokens <= 0 {
		c.ExtractionMaxTokens = 800
	}
	return c
}

// CandidateDecoder turns raw extraction output into candidates.
type CandidateDecoder func(raw string) ([]Candidate, error)

type Stats struct {
	UserMemoryCount    int `json:"user_memory_count"`
	SessionMemoryCount int `json:"session_memory_count"`
}

type ScopeStatistics struct {
	Count        int                `json:"count"`
	Capacity     int                `json:"capacity"`
	ByCategory   map[Category]int   `json:"by_category"`
	ByImportance map[Importance]int `json:"by_importance"`
	Oldest       *time.Time         `json:"oldest,omitempty"`
	Newest       *time.Time         `json:"newest,omitempty"`
}

type Statistics struct {
	User    ScopeStatistics `json:"user"`
	Session ScopeStatistics `json:"session"`
}

type SearchResult struct {
	UserMemories    []ScoredRecord `json:"user_memories"`
	SessionMemories []ScoredRecord `json:"session_memories"`
}

// Service is the memory API bound to one owner.
type Service interface {
	GetRelevantMemories(ctx context.Context, query string, limit int) []Record
	FormatMemoriesForPrompt(records []Record) string
	ExtractAndStoreMemories(ctx context.Context, conversation []llm.Message, latestReply string)
	StoreCandidates(ctx context.Context, candidates []Candidate) int
	ClearMemories(ctx context.Context, scope Scope) error
	GetMemoryStats(ctx context.Context) (Stats, error)
	GetMemoryStatistics(ctx context.Context) (*Statistics, error)
	ListMemories(ctx context.Context, scope Scope) ([]Record, error)
	SearchMemories(ctx context.Context, query string) (*SearchResult, error)
	ExportMemories(ctx context.Context) (*Export, error)
	ImportMemories(ctx context.Context, doc *Export) (int, error)
}

// Manager holds the shared collaborators and hands out owner-bound services.
type Manager struct {
	cfg       Config
	store     Store
	locker    lock.Locker
	completer completion.Completer
	decode    CandidateDecoder
	logger    logger.ILogger
}

func NewManager(cfg Config, store Store, locker lock.Locker, completer completion.Completer, decode CandidateDecoder, log logger.ILogger) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		store:     store,
		locker:    locker,
		completer: completer,
		decode:    decode,
		logger:    log,
	}
}

func (m *Manager) ForOwner(owner Owner) Service {
	return &ownerService{m: m, owner: owner}
}

func (m *Manager) capacity(scope Scope) int {
	if scope == ScopeSession {
		return m.cfg.MaxSessionMemories
	}
	return m.cfg.MaxUserMemories
}

func lockKey(scope Scope, ownerKey string) string {
	return fmt.Sprintf("memory:%s:%s", scope, ownerKey)
}

type ownerService struct {
	m     *Manager
	owner Owner
}

var scopes = []Scope{ScopeUser, ScopeSession}

func (s *ownerService) GetRelevantMemories(ctx context.Context, query string, limit int) []Record {
	if limit <= 0 {
		return []Record{}
	}
	query = strings.TrimSpace(strings.ToValidUTF8(query, ""))
	if query == "" {
		return s.recentMemories(ctx, limit)
	}
	return s.similarMemories(ctx, query, limit)
}

func (s *ownerService) recentMemories(ctx context.Context, limit int) []Record {
	var merged []Record
	for _, scope := range scopes {
		ownerKey := s.owner.keyFor(scope)
		if ownerKey == "" {
			continue
		}
		records, err := s.m.store.ListRecent(ctx, scope, ownerKey, limit)
		if err != nil {
			s.m.logger.Error("MemoryService", "Failed to list recent memories", map[string]interface{}{
				"scope": scope,
				"error": err.Error(),
			})
			return []Record{}
		}
		merged = append(merged, records...)
	}

	merged = uniqueByID(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Importance.Rank() != b.Importance.Rank() {
			return a.Importance.Rank() > b.Importance.Rank()
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return truncate(merged, limit)
}

func (s *ownerService) similarMemories(ctx context.Context, query string, limit int) []Record {
	var hits []ScoredRecord
	for _, scope := range scopes {
		ownerKey := s.owner.keyFor(scope)
		if ownerKey == "" {
			continue
		}
		found, err := s.m.store.Search(ctx, scope, ownerKey, query, s.m.cfg.SimilarityThreshold, limit)
		if err != nil {
			s.m.logger.Error("MemoryService", "Memory search failed", map[string]interface{}{
				"scope": scope,
				"error": err.Error(),
			})
			return []Record{}
		}
		hits = append(hits, found...)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	seen := make(map[string]struct{}, len(hits))
	records := make([]Record, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		records = append(records, h.Record)
	}
	return truncate(records, limit)
}

func (s *ownerService) FormatMemoriesForPrompt(records []Record) string {
	return FormatMemoriesForPrompt(records)
}

// StoreCandidates validates and stores each candidate, returning how many
// were actually inserted. Duplicates are skipped; a full scope evicts first.
func (s *ownerService) StoreCandidates(ctx context.Context, candidates []Candidate) int {
	stored := 0
	for _, c := range candidates {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}

		scope := c.scope()
		ownerKey := s.owner.keyFor(scope)
		if ownerKey == "" {
			s.m.logger.Warn("MemoryService", "No owner key for scope, dropping memory", map[string]interface{}{"scope": scope})
			continue
		}

		rec := Record{
			ID:         uuid.NewString(),
			Scope:      scope,
			OwnerKey:   ownerKey,
			Content:    content,
			Category:   NormalizeCategory(c.Category),
			Importance: NormalizeImportance(c.Importance),
		}

		inserted, err := s.insertBounded(ctx, rec)
		if err != nil {
			s.m.logger.Error("MemoryService", "Failed to store memory", map[string]interface{}{
				"scope": scope,
				"error": (&ExtractionError{Stage: "store", Err: err}).Error(),
			})
			continue
		}
		if inserted {
			stored++
		}
	}
	return stored
}

// insertBounded runs dedup, eviction and insert under the scope lock so that
// concurrent writers never push a scope past its capacity.
func (s *ownerService) insertBounded(ctx context.Context, rec Record) (bool, error) {
	release, err := s.m.locker.Acquire(ctx, lockKey(rec.Scope, rec.OwnerKey))
	if err != nil {
		return false, fmt.Errorf("acquire scope lock: %w", err)
	}
	defer release()

	existing, err := s.m.store.ListRecent(ctx, rec.Scope, rec.OwnerKey, 0)
	if err != nil {
		return false, fmt.Errorf("list scope: %w", err)
	}

	key := NormalizeContent(rec.Content)
	for _, e := range existing {
		if NormalizeContent(e.Content) == key {
			s.m.logger.Debug("MemoryService", "Skipping duplicate memory", map[string]interface{}{
				"scope":       rec.Scope,
				"existing_id": e.ID,
			})
			return false, nil
		}
	}

	capacity := s.m.capacity(rec.Scope)
	for len(existing) >= capacity {
		idx := evictionVictim(existing)
		victim := existing[idx]
		if err := s.m.store.Delete(ctx, rec.Scope, rec.OwnerKey, victim.ID); err != nil {
			return false, fmt.Errorf("evict %s: %w", victim.ID, err)
		}
		s.m.logger.Debug("MemoryService", "Evicted memory", map[string]interface{}{
			"scope":      rec.Scope,
			"id":         victim.ID,
			"importance": victim.Importance,
		})
		existing = append(existing[:idx], existing[idx+1:]...)
	}

	rec.CreatedAt = time.Now().UTC()
	if err := s.m.store.Insert(ctx, rec); err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	return true, nil
}

// evictionVictim picks the lowest importance record, oldest among ties.
func evictionVictim(records []Record) int {
	victim := 0
	for i := 1; i < len(records); i++ {
		r, v := records[i], records[victim]
		if r.Importance.Rank() < v.Importance.Rank() ||
			(r.Importance.Rank() == v.Importance.Rank() && r.CreatedAt.Before(v.CreatedAt)) {
			victim = i
		}
	}
	return victim
}

func (s *ownerService) ClearMemories(ctx context.Context, scope Scope) error {
	if scope != ScopeUser && scope != ScopeSession {
		return ErrInvalidScope
	}
	ownerKey := s.owner.keyFor(scope)
	if ownerKey == "" {
		return nil
	}

	release, err := s.m.locker.Acquire(ctx, lockKey(scope, ownerKey))
	if err != nil {
		return fmt.Errorf("acquire scope lock: %w", err)
	}
	defer release()

	if err := s.m.store.DeleteAll(ctx, scope, ownerKey); err != nil {
		return fmt.Errorf("clear %s memories: %w", scope, err)
	}
	s.m.logger.Info("MemoryService", "Cleared memories", map[string]interface{}{"scope": scope})
	return nil
}

func (s *ownerService) count(ctx context.Context, scope Scope) (int, error) {
	ownerKey := s.owner.keyFor(scope)
	if ownerKey == "" {
		return 0, nil
	}
	return s.m.store.Count(ctx, scope, ownerKey)
}

func (s *ownerService) GetMemoryStats(ctx context.Context) (Stats, error) {
	userCount, err := s.count(ctx, ScopeUser)
	if err != nil {
		return Stats{}, err
	}
	sessionCount, err := s.count(ctx, ScopeSession)
	if err != nil {
		return Stats{}, err
	}
	return Stats{UserMemoryCount: userCount, SessionMemoryCount: sessionCount}, nil
}

func (s *ownerService) GetMemoryStatistics(ctx context.Context) (*Statistics, error) {
	user, err := s.scopeStatistics(ctx, ScopeUser)
	if err != nil {
		return nil, err
	}
	session, err := s.scopeStatistics(ctx, ScopeSession)
	if err != nil {
		return nil, err
	}
	return &Statistics{User: *user, Session: *session}, nil
}

func (s *ownerService) scopeStatistics(ctx context.Context, scope Scope) (*ScopeStatistics, error) {
	records, err := s.ListMemories(ctx, scope)
	if err != nil {
		return nil, err
	}
	stats := &ScopeStatistics{
		Count:        len(records),
		Capacity:     s.m.capacity(scope),
		ByCategory:   make(map[Category]int),
		ByImportance: make(map[Importance]int),
	}
	for i := range records {
		r := records[i]
		stats.ByCategory[r.Category]++
		stats.ByImportance[r.Importance]++
		if stats.Oldest == nil || r.CreatedAt.Before(*stats.Oldest) {
			stats.Oldest = &records[i].CreatedAt
		}
		if stats.Newest == nil || r.CreatedAt.After(*stats.Newest) {
			stats.Newest = &records[i].CreatedAt
		}
	}
	return stats, nil
}

func (s *ownerService) ListMemories(ctx context.Context, scope Scope) ([]Record, error) {
	if scope != ScopeUser && scope != ScopeSession {
		return nil, ErrInvalidScope
	}
	ownerKey := s.owner.keyFor(scope)
	if ownerKey == "" {
		return []Record{}, nil
	}
	records, err := s.m.store.ListRecent(ctx, scope, ownerKey, 0)
	if err != nil {
		return nil, fmt.Errorf("list %s memories: %w", scope, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *ownerService) SearchMemories(ctx context.Context, query string) (*SearchResult, error) {
	result := &SearchResult{UserMemories: []ScoredRecord{}, SessionMemories: []ScoredRecord{}}
	query = strings.TrimSpace(strings.ToValidUTF8(query, ""))
	if query == "" {
		return result, nil
	}

	for _, scope := range scopes {
		ownerKey := s.owner.keyFor(scope)
		if ownerKey == "" {
			continue
		}
		hits, err := s.m.store.Search(ctx, scope, ownerKey, query, s.m.cfg.SimilarityThreshold, s.m.capacity(scope))
		if err != nil {
			return nil, fmt.Errorf("search %s memories: %w", scope, err)
		}
		if hits == nil {
			hits = []ScoredRecord{}
		}
		if scope == ScopeSession {
			result.SessionMemories = hits
		} else {
			result.UserMemories = hits
		}
	}
	return result, nil
}

func uniqueByID(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func truncate(records []Record, limit int) []Record {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
