package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-memory-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "chat_events"

// Envelope is the frame pushed to subscribers of a chat.
type Envelope struct {
	Type   string      `json:"type"`
	ChatID uuid.UUID   `json:"chat_id"`
	Data   interface{} `json:"data"`
}

type Hub struct {
	// Subscribers per chat. A chat may be open in several tabs.
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client

	// done is closed when Run returns so late senders do not block.
	done chan struct{}

	mu sync.RWMutex

	// Redis fan-out across instances. nil means single instance.
	rdb *redis.Client

	// instanceID lets an instance skip its own fan-out messages.
	instanceID string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ChatID] = append(h.clients[client.ChatID], client)
			h.mu.Unlock()
			h.logger.Debug("Hub", "Client registered", map[string]interface{}{"chat_id": client.ChatID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister is a no-op once the hub has stopped; closeAll already released
// the client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.ChatID]
	for i, c := range clients {
		if c == client {
			h.clients[client.ChatID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.ChatID]) == 0 {
		delete(h.clients, client.ChatID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, chatID)
	}
}

// Publish pushes a frame to every subscriber of chatID, locally and, when
// Redis is configured, on the other instances.
func (h *Hub) Publish(ctx context.Context, chatID uuid.UUID, eventType string, data interface{}) {
	frame, err := json.Marshal(Envelope{Type: eventType, ChatID: chatID, Data: data})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode frame", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliver(chatID, frame)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, ChatID: chatID, Frame: frame})
		if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Redis fan-out failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// deliver never blocks. Clients with a full buffer are dropped.
func (h *Hub) deliver(chatID uuid.UUID, frame []byte) {
	var stale []*Client

	h.mu.RLock()
	for _, client := range h.clients[chatID] {
		select {
		case client.Send <- frame:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"chat_id": chatID})
		h.Unregister(client)
	}
}

func (h *Hub) subscriberCount(chatID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[chatID])
}

type clusterMessage struct {
	Origin string          `json:"origin"`
	ChatID uuid.UUID       `json:"chat_id"`
	Frame  json.RawMessage `json:"frame"`
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			h.deliver(payload.ChatID, payload.Frame)
		}
	}
}
