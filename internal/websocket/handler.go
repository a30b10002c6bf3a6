package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs attaches a connection to the hub and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, chatID uuid.UUID) {
	client := &Client{Hub: hub, Conn: c, ChatID: chatID, Send: make(chan []byte, 256)}
	if !hub.Register(client) {
		_ = c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
