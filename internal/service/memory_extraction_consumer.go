package service

import (
	"context"
	"encoding/json"
	"errors"

	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/pkg/memory"
	"ai-memory-chat-be/pkg/worker"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// memoryExtractionConsumer moves extraction requests from the topic onto the
// worker pool. Messages are acked once the pool accepts them or refuses them;
// a refused job is lost and only logged.
type memoryExtractionConsumer struct {
	subscriber message.Subscriber
	topicName  string
	pool       *worker.Pool
	memories   *memory.Manager
	logger     logger.ILogger
}

func NewMemoryExtractionConsumer(
	subscriber message.Subscriber,
	topicName string,
	pool *worker.Pool,
	memories *memory.Manager,
	log logger.ILogger,
) IConsumerService {
	return &memoryExtractionConsumer{
		subscriber: subscriber,
		topicName:  topicName,
		pool:       pool,
		memories:   memories,
		logger:     log,
	}
}

func (c *memoryExtractionConsumer) Consume(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			c.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (c *memoryExtractionConsumer) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.MemoryExtractionMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Error("MemoryExtraction", "Dropping undecodable extraction message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	err := c.pool.Submit(ctx, c.job(payload))
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		c.logger.Warn("MemoryExtraction", "Extraction job rejected", map[string]interface{}{
			"chat_id": payload.ChatId,
			"error":   err.Error(),
		})
	default:
		c.logger.Error("MemoryExtraction", "Failed to submit extraction job", map[string]interface{}{
			"chat_id": payload.ChatId,
			"error":   err.Error(),
		})
	}
	msg.Ack()
}

func (c *memoryExtractionConsumer) job(payload dto.MemoryExtractionMessage) worker.Job {
	owner := memory.Owner{UserKey: payload.UserKey, SessionKey: payload.SessionKey}
	return func(ctx context.Context) error {
		svc := c.memories.ForOwner(owner)
		if payload.Inline {
			stored := svc.StoreCandidates(ctx, payload.Candidates)
			c.logger.Debug("MemoryExtraction", "Stored inline memories", map[string]interface{}{
				"chat_id": payload.ChatId,
				"stored":  stored,
			})
			return nil
		}
		svc.ExtractAndStoreMemories(ctx, payload.Conversation, payload.Reply)
		return nil
	}
}
