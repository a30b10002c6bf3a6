package service

import (
	"context"
	"errors"

	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/internal/pkg/serverutils"
	"ai-memory-chat-be/pkg/events"
	"ai-memory-chat-be/pkg/memory"
)

type IMemoryService interface {
	GetMemories(ctx context.Context, owner memory.Owner) (*dto.MemoryListResponse, error)
	GetStats(ctx context.Context, owner memory.Owner) (*dto.MemoryStatsResponse, error)
	Search(ctx context.Context, owner memory.Owner, query string) (*memory.SearchResult, error)
	Statistics(ctx context.Context, owner memory.Owner) (*memory.Statistics, error)
	Export(ctx context.Context, owner memory.Owner) (*memory.Export, error)
	Import(ctx context.Context, owner memory.Owner, doc *memory.Export) (*dto.ImportMemoriesResponse, error)
	Clear(ctx context.Context, owner memory.Owner, scope memory.Scope) error
}

type memoryService struct {
	memories MemoryProvider
	events   events.Publisher
	logger   logger.ILogger
}

func NewMemoryService(memories MemoryProvider, eventPublisher events.Publisher, log logger.ILogger) IMemoryService {
	if eventPublisher == nil {
		eventPublisher = events.NopPublisher{}
	}
	return &memoryService{
		memories: memories,
		events:   eventPublisher,
		logger:   log,
	}
}

func (ms *memoryService) GetMemories(ctx context.Context, owner memory.Owner) (*dto.MemoryListResponse, error) {
	svc := ms.memories.ForOwner(owner)

	stats, err := svc.GetMemoryStats(ctx)
	if err != nil {
		return nil, err
	}
	user, err := svc.ListMemories(ctx, memory.ScopeUser)
	if err != nil {
		return nil, err
	}
	session, err := svc.ListMemories(ctx, memory.ScopeSession)
	if err != nil {
		return nil, err
	}

	return &dto.MemoryListResponse{
		Stats:           stats,
		UserMemories:    user,
		SessionMemories: session,
	}, nil
}

func (ms *memoryService) GetStats(ctx context.Context, owner memory.Owner) (*dto.MemoryStatsResponse, error) {
	stats, err := ms.memories.ForOwner(owner).GetMemoryStats(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.MemoryStatsResponse{
		UserKey:    owner.UserKey,
		SessionKey: owner.SessionKey,
		Stats:      stats,
	}, nil
}

// Search returns empty result lists for a blank query.
func (ms *memoryService) Search(ctx context.Context, owner memory.Owner, query string) (*memory.SearchResult, error) {
	return ms.memories.ForOwner(owner).SearchMemories(ctx, query)
}

func (ms *memoryService) Statistics(ctx context.Context, owner memory.Owner) (*memory.Statistics, error) {
	return ms.memories.ForOwner(owner).GetMemoryStatistics(ctx)
}

func (ms *memoryService) Export(ctx context.Context, owner memory.Owner) (*memory.Export, error) {
	return ms.memories.ForOwner(owner).ExportMemories(ctx)
}

func (ms *memoryService) Import(ctx context.Context, owner memory.Owner, doc *memory.Export) (*dto.ImportMemoriesResponse, error) {
	imported, err := ms.memories.ForOwner(owner).ImportMemories(ctx, doc)
	if errors.Is(err, memory.ErrUnsupportedExport) {
		return nil, serverutils.NewValidationError("version", err.Error())
	}
	if err != nil {
		return nil, err
	}

	ms.publish(ctx, events.TypeMemoriesImported, map[string]interface{}{
		"user_key":    owner.UserKey,
		"session_key": owner.SessionKey,
		"imported":    imported,
	})
	return &dto.ImportMemoriesResponse{Imported: imported}, nil
}

func (ms *memoryService) Clear(ctx context.Context, owner memory.Owner, scope memory.Scope) error {
	err := ms.memories.ForOwner(owner).ClearMemories(ctx, scope)
	if errors.Is(err, memory.ErrInvalidScope) {
		return serverutils.NewValidationError("scope", err.Error())
	}
	if err != nil {
		return err
	}

	ms.logger.Info("MemoryService", "Memories cleared", map[string]interface{}{
		"scope":       scope,
		"user_key":    owner.UserKey,
		"session_key": owner.SessionKey,
	})
	ms.publish(ctx, events.TypeMemoriesCleared, map[string]interface{}{
		"scope":       string(scope),
		"user_key":    owner.UserKey,
		"session_key": owner.SessionKey,
	})
	return nil
}

func (ms *memoryService) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := ms.events.Publish(ctx, events.New(eventType, data)); err != nil {
		ms.logger.Warn("MemoryService", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
