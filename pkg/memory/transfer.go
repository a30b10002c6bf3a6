package memory

import (
	"context"
	"time"
)

const ExportVersion = 1

// Export is the portable form of an owner's memories.
type Export struct {
	Version         int       `json:"version"`
	ExportedAt      time.Time `json:"exported_at"`
	UserKey         string    `json:"user_key,omitempty"`
	SessionKey      string    `json:"session_key,omitempty"`
	UserMemories    []Record  `json:"user_memories"`
	SessionMemories []Record  `json:"session_memories"`
}

func (s *ownerService) ExportMemories(ctx context.Context) (*Export, error) {
	user, err := s.ListMemories(ctx, ScopeUser)
	if err != nil {
		return nil, err
	}
	session, err := s.ListMemories(ctx, ScopeSession)
	if err != nil {
		return nil, err
	}
	return &Export{
		Version:         ExportVersion,
		ExportedAt:      time.Now().UTC(),
		UserKey:         s.owner.UserKey,
		SessionKey:      s.owner.SessionKey,
		UserMemories:    user,
		SessionMemories: session,
	}, nil
}

// ImportMemories stores the records of doc for the current owner. Records go
// through the normal candidate path, so capacity and dedup still apply.
func (s *ownerService) ImportMemories(ctx context.Context, doc *Export) (int, error) {
	if doc == nil || doc.Version != ExportVersion {
		return 0, ErrUnsupportedExport
	}

	candidates := make([]Candidate, 0, len(doc.UserMemories)+len(doc.SessionMemories))
	for _, r := range doc.UserMemories {
		candidates = append(candidates, recordCandidate(r, ScopeUser))
	}
	for _, r := range doc.SessionMemories {
		candidates = append(candidates, recordCandidate(r, ScopeSession))
	}
	return s.StoreCandidates(ctx, candidates), nil
}

func recordCandidate(r Record, scope Scope) Candidate {
	return Candidate{
		Content:    r.Content,
		Category:   string(r.Category),
		Importance: string(r.Importance),
		Type:       string(scope),
	}
}
