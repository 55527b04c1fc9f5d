package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/models"
)

// fakeTransport is an in-memory Transport
type fakeTransport struct {
	inbound chan models.Message

	mu     sync.Mutex
	sent   []models.Message
	closes int
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan models.Message, 16)}
}

func (t *fakeTransport) Send(msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) Inbound() <-chan models.Message { return t.inbound }

func (t *fakeTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

// push delivers a message as if the server sent it
func (t *fakeTransport) push(msg models.Message) {
	t.inbound <- msg
}

// drop ends the connection from the remote side
func (t *fakeTransport) drop(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.inbound)
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeTransport) sentMessages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.sent...)
}

// fakeDialer hands out fakeTransports. When release is set, each handshake
// completes only once release is closed, whatever the context says.
type fakeDialer struct {
	mu      sync.Mutex
	err     error
	release chan struct{}
	dialed  []*fakeTransport
	tokens  []string
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Transport, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	err, release := d.err, d.release
	t := newFakeTransport()
	if err == nil {
		d.dialed = append(d.dialed, t)
	}
	d.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.dialed) {
		return nil
	}
	return d.dialed[i]
}

type historyResponse struct {
	messages []models.Message
	err      error
}

// fakeHistory answers per token. Queued responses are consumed in order and the
// last one repeats. A held token answers only once its gate is closed, ignoring
// cancellation, to simulate late responses. A stalled call consumes no response
// and returns only when its context is cancelled.
type fakeHistory struct {
	mu        sync.Mutex
	responses map[string][]historyResponse
	gates     map[string]chan struct{}
	stalls    map[string]int
	calls     []string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		responses: make(map[string][]historyResponse),
		gates:     make(map[string]chan struct{}),
		stalls:    make(map[string]int),
	}
}

// stall makes the next n calls for token block until cancelled
func (h *fakeHistory) stall(token string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stalls[token] += n
}

func (h *fakeHistory) respond(token string, msgs []models.Message, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[token] = append(h.responses[token], historyResponse{messages: msgs, err: err})
}

func (h *fakeHistory) hold(token string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	gate := make(chan struct{})
	h.gates[token] = gate
	return gate
}

func (h *fakeHistory) LoadHistory(ctx context.Context, token, group string) ([]models.Message, error) {
	h.mu.Lock()
	h.calls = append(h.calls, token)
	if h.stalls[token] > 0 {
		h.stalls[token]--
		h.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	gate := h.gates[token]
	var resp historyResponse
	if queue := h.responses[token]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			h.responses[token] = queue[1:]
		}
	}
	h.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return resp.messages, resp.err
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func msg(id, group, text string) models.Message {
	return models.Message{ID: id, Text: text, Sender: "Alice", Group: group}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// nextEvent reads one manager event or fails the test
func nextEvent(t *testing.T, cm *ConnectionManager) Event {
	t.Helper()
	select {
	case ev := <-cm.Events():
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for a connection event")
		return Event{}
	}
}
