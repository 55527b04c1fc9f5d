package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/models"
)

// Transport is one established push connection.
// Inbound is closed when the connection ends; Err then reports the cause (nil on a clean close).
type Transport interface {
	Send(msg models.Message) error
	Inbound() <-chan models.Message
	Err() error
	Close() error
}

// Dialer performs the transport handshake
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}

// EventKind distinguishes connection manager events
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventMessage
)

// Event is emitted by the connection manager in the order things happened
type Event struct {
	Kind    EventKind
	State   models.ConnectionState // EventStateChanged
	Err     error                  // EventStateChanged to disconnected, when caused by a failure
	Message models.Message         // EventMessage
}

const eventBufferSize = 256

// ConnectionManager owns the lifecycle of a single push connection for one credential.
// Inbound messages and state transitions are delivered on Events; the manager never
// deduplicates. After Teardown the manager is inert.
type ConnectionManager struct {
	dialer     Dialer
	credential Credential
	logger     *zap.Logger
	now        func() time.Time

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     models.ConnectionState
	transport Transport
	attempt   uint64
	closed    bool
}

// NewConnectionManager creates a manager. Nothing is dialed until Connect.
func NewConnectionManager(dialer Dialer, credential Credential, logger *zap.Logger) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		dialer:     dialer,
		credential: credential,
		logger:     logging.OrNop(logger),
		now:        time.Now,
		events:     make(chan Event, eventBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		state:      models.StateDisconnected,
	}
}

// Events returns the event stream. It is never closed; stop reading after Teardown.
func (cm *ConnectionManager) Events() <-chan Event {
	return cm.events
}

// State returns the current connection state (thread-safe)
func (cm *ConnectionManager) State() models.ConnectionState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// Connect starts a connection attempt. It switches to connecting immediately and
// returns without waiting for the handshake. It does nothing while connecting,
// connected, or after Teardown.
func (cm *ConnectionManager) Connect() {
	cm.mu.Lock()
	if cm.closed || cm.state != models.StateDisconnected {
		cm.mu.Unlock()
		return
	}
	cm.attempt++
	attempt := cm.attempt
	cm.state = models.StateConnecting
	cm.mu.Unlock()

	cm.emit(Event{Kind: EventStateChanged, State: models.StateConnecting})
	go cm.dial(attempt)
}

// Send transmits a message composed from text and group. Empty text, or a connection
// that is not open, makes the call a no-op that returns false. Nothing is queued.
func (cm *ConnectionManager) Send(text, group string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if group == "" {
		group = models.DefaultGroup
	}

	cm.mu.Lock()
	t := cm.transport
	connected := cm.state == models.StateConnected
	cm.mu.Unlock()

	if !connected || t == nil {
		cm.logger.Debug("send dropped, not connected", zap.String("group", group))
		return false
	}

	msg := models.Message{
		Text:   text,
		Sender: cm.credential.DisplayName(),
		Group:  group,
	}
	if err := t.Send(msg); err != nil {
		cm.logger.Debug("send failed", zap.Error(err))
		return false
	}
	return true
}

// Teardown releases the connection. It is safe to call any number of times and from
// any state; a handshake still in flight is closed as soon as it completes.
func (cm *ConnectionManager) Teardown() {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return
	}
	cm.closed = true
	t := cm.transport
	cm.transport = nil
	cm.state = models.StateDisconnected
	cm.mu.Unlock()

	cm.cancel()
	if t != nil {
		cm.closeTransport(t)
	}
}

// dial runs the handshake of one attempt and then pumps its inbound messages
func (cm *ConnectionManager) dial(attempt uint64) {
	t, err := cm.dialer.Dial(cm.ctx, cm.credential.Token)

	cm.mu.Lock()
	if cm.closed || attempt != cm.attempt {
		cm.mu.Unlock()
		if t != nil {
			cm.closeTransport(t)
		}
		return
	}
	if err != nil {
		cm.state = models.StateDisconnected
		cm.mu.Unlock()
		cm.logger.Warn("connection failed", zap.Error(err))
		cm.emit(Event{Kind: EventStateChanged, State: models.StateDisconnected, Err: err})
		return
	}
	cm.transport = t
	cm.state = models.StateConnected
	cm.mu.Unlock()

	cm.logger.Info("connected")
	cm.emit(Event{Kind: EventStateChanged, State: models.StateConnected})
	cm.emit(Event{Kind: EventMessage, Message: models.NewSystemMessage(models.ConnectedNotice, cm.now())})

	cm.pump(attempt, t)
}

// pump forwards inbound messages until the transport ends or the manager is torn down
func (cm *ConnectionManager) pump(attempt uint64, t Transport) {
	inbound := t.Inbound()
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				cm.dropped(attempt, t)
				return
			}
			cm.emit(Event{Kind: EventMessage, Message: msg})
		case <-cm.ctx.Done():
			return
		}
	}
}

// dropped handles a transport that ended on its own
func (cm *ConnectionManager) dropped(attempt uint64, t Transport) {
	cm.mu.Lock()
	if cm.closed || attempt != cm.attempt || cm.transport != t {
		cm.mu.Unlock()
		return
	}
	cm.transport = nil
	cm.state = models.StateDisconnected
	cm.mu.Unlock()

	cm.closeTransport(t)
	err := t.Err()
	if err != nil {
		cm.logger.Warn("connection lost", zap.Error(err))
	} else {
		cm.logger.Info("connection closed")
	}
	cm.emit(Event{Kind: EventStateChanged, State: models.StateDisconnected, Err: err})
}

func (cm *ConnectionManager) closeTransport(t Transport) {
	if err := t.Close(); err != nil {
		cm.logger.Debug("close failed", zap.Error(err))
	}
}

// emit delivers an event unless the manager has been torn down
func (cm *ConnectionManager) emit(ev Event) {
	select {
	case <-cm.ctx.Done():
		return
	default:
	}
	select {
	case cm.events <- ev:
	case <-cm.ctx.Done():
	}
}
