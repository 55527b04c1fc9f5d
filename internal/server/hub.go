package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/protocol"
)

// Hub maintains the set of live connections and fans dispatches out to them
type Hub struct {
	// Registered clients by connection ID
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound

	// done is closed once Run returns
	done chan struct{}

	logger *zap.Logger

	// Sequence number for dispatch messages
	sequence int64
	seqMu    sync.Mutex
}

// outbound is a message for every client, or only for target when set
type outbound struct {
	target  *Client
	message *protocol.Message
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c.ID] = c
			h.logger.Debug("client registered",
				zap.Stringer("conn", c.ID), zap.String("user", c.User.DisplayName()))

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			delete(h.clients, c.ID)
			close(c.send)
			h.logger.Debug("client unregistered", zap.Stringer("conn", c.ID))

		case out := <-h.broadcast:
			if out.target != nil {
				if c, ok := h.clients[out.target.ID]; ok {
					h.deliver(c, out.message)
				}
				continue
			}
			for _, c := range h.clients {
				h.deliver(c, out.message)
			}
		}
	}
}

func (h *Hub) deliver(c *Client, msg *protocol.Message) {
	select {
	case c.send <- msg:
	default:
		// Client's buffer is full, skip
		h.logger.Warn("client buffer full, dropping message", zap.Stringer("conn", c.ID))
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues msg for every registered client, the sender included
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.queue(&outbound{message: msg})
}

// SendTo queues msg for a single client
func (h *Hub) SendTo(c *Client, msg *protocol.Message) {
	h.queue(&outbound{target: c, message: msg})
}

func (h *Hub) queue(out *outbound) {
	select {
	case h.broadcast <- out:
	case <-h.done:
	}
}

// NextSequence returns the next sequence number for dispatch messages
func (h *Hub) NextSequence() int64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.sequence++
	return h.sequence
}
