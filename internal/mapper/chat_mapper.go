package mapper

import (
	"time"

	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/model"

	"gorm.io/gorm"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func softDeleteToEntity(d gorm.DeletedAt) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func softDeleteToModel(deletedAt *time.Time, isDeleted bool) gorm.DeletedAt {
	if deletedAt != nil {
		return gorm.DeletedAt{Time: *deletedAt, Valid: true}
	}
	if isDeleted {
		return gorm.DeletedAt{Time: time.Now(), Valid: true}
	}
	return gorm.DeletedAt{}
}

func updatedAtToEntity(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func updatedAtToModel(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Chat Mappers

func (m *ChatMapper) ChatToEntity(c *model.Chat) *entity.Chat {
	if c == nil {
		return nil
	}
	return &entity.Chat{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAtToEntity(c.UpdatedAt),
		DeletedAt: softDeleteToEntity(c.DeletedAt),
		IsDeleted: c.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatToModel(c *entity.Chat) *model.Chat {
	if c == nil {
		return nil
	}
	return &model.Chat{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: updatedAtToModel(c.UpdatedAt),
		DeletedAt: softDeleteToModel(c.DeletedAt, c.IsDeleted),
	}
}

// Message Mappers

func (m *ChatMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}
	return &entity.Message{
		Id:        msg.Id,
		ChatId:    msg.ChatId,
		Role:      entity.Role(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: updatedAtToEntity(msg.UpdatedAt),
		DeletedAt: softDeleteToEntity(msg.DeletedAt),
		IsDeleted: msg.DeletedAt.Valid,
	}
}

func (m *ChatMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}
	return &model.Message{
		Id:        msg.Id,
		ChatId:    msg.ChatId,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		UpdatedAt: updatedAtToModel(msg.UpdatedAt),
		DeletedAt: softDeleteToModel(msg.DeletedAt, msg.IsDeleted),
	}
}

func (m *ChatMapper) MessagesToEntities(models []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(models))
	for i, msg := range models {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}
