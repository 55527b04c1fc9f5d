package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/logging"
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
	maxMessageSize = 512 * 1024

	sendBufferSize    = 256
	inboundBufferSize = 256
)

// ErrNotConnected is returned when writing to a closed connection
var ErrNotConnected = errors.New("not connected")

// WebSocketDialer opens push connections to the relay's /ws endpoint
type WebSocketDialer struct {
	serverAddr       string
	handshakeTimeout time.Duration
	logger           *zap.Logger
}

// NewWebSocketDialer creates a dialer for serverAddr (http, https, ws or wss)
func NewWebSocketDialer(serverAddr string, handshakeTimeout time.Duration, logger *zap.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		serverAddr:       serverAddr,
		handshakeTimeout: handshakeTimeout,
		logger:           logging.OrNop(logger),
	}
}

// WebSocketURL converts a server address into the push endpoint URL
func WebSocketURL(serverAddr string) (string, error) {
	u, err := url.Parse(serverAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}

	// Ensure WebSocket scheme
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server address: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Dial performs the WebSocket handshake with the bearer credential attached
func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Transport, error) {
	wsURL, err := WebSocketURL(d.serverAddr)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("failed to connect: %w", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := newConnection(conn, d.logger)
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Connection is a WebSocket Transport
type Connection struct {
	conn   *websocket.Conn
	logger *zap.Logger

	send    chan *protocol.Message
	inbound chan models.Message
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newConnection(conn *websocket.Conn, logger *zap.Logger) *Connection {
	return &Connection{
		conn:    conn,
		logger:  logger,
		send:    make(chan *protocol.Message, sendBufferSize),
		inbound: make(chan models.Message, inboundBufferSize),
		done:    make(chan struct{}),
	}
}

// Inbound returns the stream of pushed messages
func (c *Connection) Inbound() <-chan models.Message {
	return c.inbound
}

// Err returns why the connection ended. Only meaningful once Inbound is closed.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// fail records the first transport error
func (c *Connection) fail(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// closeWithErr records err as the reason the connection ended, then closes it
func (c *Connection) closeWithErr(err error) {
	c.fail(err)
	c.Close()
}

// Send queues a message to be sent
func (c *Connection) Send(msg models.Message) error {
	env, err := protocol.NewMessage(protocol.OpSendMessage, msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close sends a normal closure and releases the socket. Only the first call has an effect.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

// readPump reads messages from the WebSocket
func (c *Connection) readPump() {
	defer func() {
		close(c.inbound)
		c.Close()
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
			select {
			case <-c.done:
				// Closed locally
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("connection closed by peer")
				} else {
					c.fail(err)
				}
			}
			return
		}

		var env protocol.Message
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("failed to parse message", zap.Error(err))
			continue
		}

		switch env.Op {
		case protocol.OpDispatch:
			if env.Type != protocol.EventMessageCreate {
				continue
			}
			var msg models.Message
			if err := env.Decode(&msg); err != nil {
				c.logger.Warn("failed to parse message payload", zap.Error(err))
				continue
			}
			select {
			case c.inbound <- msg:
			case <-c.done:
				return
			}

		case protocol.OpError:
			var payload protocol.ErrorPayload
			if err := env.Decode(&payload); err == nil {
				c.logger.Warn("server rejected request",
					zap.Int("code", payload.Code), zap.String("message", payload.Message))
			}
		}
	}
}

// writePump writes messages to the WebSocket
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Warn("failed to marshal message", zap.Error(err))
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("failed to write message", zap.Error(err))
				c.closeWithErr(fmt.Errorf("write failed: %w", err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWithErr(fmt.Errorf("ping failed: %w", err))
				return
			}

		case <-c.done:
			return
		}
	}
}
