package events

import (
	"context"
	"time"
)

// Event defines the contract for all domain events.
type Event interface {
	// EventType is the dotted subject suffix, e.g. "chat.message.created".
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

const (
	TypeChatCreated        = "chat.created"
	TypeChatDeleted        = "chat.deleted"
	TypeChatMessageCreated = "chat.message.created"
	TypeMemoriesCleared    = "memory.cleared"
	TypeMemoriesImported   = "memory.imported"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

// Publisher delivers events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when no bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
