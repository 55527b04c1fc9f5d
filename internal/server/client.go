package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/models"
	"github.com/depmaths/messagerie/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Size of client send buffer
	sendBufferSize = 256
)

// Client is one authenticated WebSocket connection
type Client struct {
	ID   uuid.UUID
	User *models.User

	conn     *websocket.Conn
	hub      *Hub
	handlers *Handlers
	logger   *zap.Logger

	// Buffered channel of outbound messages, closed by the hub
	send chan *protocol.Message
}

// NewClient creates a new client instance
func NewClient(conn *websocket.Conn, user *models.User, hub *Hub, handlers *Handlers, logger *zap.Logger) *Client {
	id := uuid.New()
	return &Client{
		ID:       id,
		User:     user,
		conn:     conn,
		hub:      hub,
		handlers: handlers,
		logger:   logger.With(zap.Stringer("conn", id)),
		send:     make(chan *protocol.Message, sendBufferSize),
	}
}

// ReadPump pumps messages from the WebSocket connection to the handlers
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(protocol.ErrorCodeInvalidPayload, "Invalid message format")
			continue
		}

		switch msg.Op {
		case protocol.OpSendMessage:
			c.handlers.HandleSendMessage(c, &msg)
		default:
			c.sendError(protocol.ErrorCodeUnknown, "Unknown opcode")
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Warn("failed to marshal message", zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError queues an error frame for this client only
func (c *Client) sendError(code int, message string) {
	msg, err := protocol.NewMessage(protocol.OpError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	c.hub.SendTo(c, msg)
}
