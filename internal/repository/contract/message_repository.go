package contract

import (
	"context"

	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	DeleteByChatId(ctx context.Context, chatId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
