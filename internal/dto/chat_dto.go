package dto

import (
	"time"

	"ai-memory-chat-be/internal/repository/memory"

	"github.com/google/uuid"
)

type CreateChatRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type UpdateChatRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type ChatResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type ChatDetailResponse struct {
	ChatResponse
	Messages []*MessageResponse `json:"messages"`
}

type MessageResponse struct {
	Id        uuid.UUID `json:"id"`
	ChatId    uuid.UUID `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type SendMessageResponse struct {
	Sent     *MessageResponse   `json:"sent"`
	Reply    *MessageResponse   `json:"reply"`
	Messages []*MessageResponse `json:"messages"`
	Debug    *memory.DebugInfo  `json:"debug,omitempty"`
}
