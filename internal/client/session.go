package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/models"
)

// ErrSessionClosed is returned by operations on a stopped session
var ErrSessionClosed = errors.New("session closed")

// SessionConfig wires a session to its collaborators
type SessionConfig struct {
	History HistorySource
	Dialer  Dialer
	Logger  *zap.Logger

	// Reconnect enables automatic reconnection after a transport drop; nil disables it.
	Reconnect *ReconnectStrategy

	// HistoryGroup restricts the history fetch to one group; empty fetches every group.
	HistoryGroup string
}

// Session is one messaging session: it reconciles the history fetch with the live
// stream and exposes the merged, group-filtered view.
//
// A single goroutine owns the message store and applies every mutation, so merges
// never run concurrently. Readers see published snapshots.
type Session struct {
	history      HistorySource
	dialer       Dialer
	logger       *zap.Logger
	reconnect    *ReconnectStrategy
	historyGroup string

	commands chan func(*sessionLoop)
	results  chan historyResult
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	updates chan struct{}

	mu       sync.RWMutex
	state    models.ConnectionState
	failure  models.LoadFailure
	messages []models.Message
	group    string
	manager  *ConnectionManager
}

type historyResult struct {
	generation uint64
	fetch      uint64
	messages   []models.Message
	err        error
}

// sessionLoop is the state only the loop goroutine touches
type sessionLoop struct {
	generation  uint64
	fetch       uint64
	credential  Credential
	store       *MessageStore
	manager     *ConnectionManager
	events      <-chan Event
	cancelFetch context.CancelFunc
	retries     int
	retryTimer  *time.Timer
	retryC      <-chan time.Time
	wasDropped  bool
}

// NewSession creates an inactive session and starts its loop. Call Start to activate
// it and Stop to release it. History and Dialer are required.
func NewSession(cfg SessionConfig) *Session {
	if cfg.History == nil || cfg.Dialer == nil {
		panic("client: session requires a history source and a dialer")
	}
	s := &Session{
		history:      cfg.History,
		dialer:       cfg.Dialer,
		logger:       logging.OrNop(cfg.Logger),
		reconnect:    cfg.Reconnect,
		historyGroup: cfg.HistoryGroup,
		commands:     make(chan func(*sessionLoop)),
		results:      make(chan historyResult),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		updates:      make(chan struct{}, 1),
		state:        models.StateDisconnected,
		group:        models.DefaultGroup,
	}
	go s.run()
	return s
}

// Start activates the session for cred, tearing down any previous activation, and
// returns once the switch is applied. History and the handshake continue in the
// background. An absent credential leaves the session disconnected and unauthenticated without
// contacting any service.
func (s *Session) Start(cred Credential) error {
	return s.do(func(l *sessionLoop) {
		s.activate(l, cred)
	})
}

// Stop releases the connection, abandons any in-flight fetch and ends the loop.
// It is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

// Watch follows gate until ctx is done or the session stops, restarting the session
// on every credential change.
func (s *Session) Watch(ctx context.Context, gate *CredentialGate) {
	creds, cancel := gate.Subscribe()
	defer cancel()

	for {
		select {
		case cred := <-creds:
			if err := s.Start(cred); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Send transmits text to group over the live connection. It returns false when the
// text is empty or the connection is not open; nothing is queued.
func (s *Session) Send(text, group string) bool {
	s.mu.RLock()
	m := s.manager
	s.mu.RUnlock()

	if m == nil {
		return false
	}
	return m.Send(text, group)
}

// SetActiveGroup changes the group shown by Visible
func (s *Session) SetActiveGroup(group string) {
	s.mu.Lock()
	changed := s.group != group
	s.group = group
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// ActiveGroup returns the selected group
func (s *Session) ActiveGroup() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.group
}

// Visible returns the messages of the active group in store order
func (s *Session) Visible() []models.Message {
	s.mu.RLock()
	msgs, group := s.messages, s.group
	s.mu.RUnlock()
	return Select(msgs, group)
}

// Messages returns a copy of every stored message, all groups included
func (s *Session) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// State returns the connection state
func (s *Session) State() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LoadFailure returns the classification of the last history fetch
func (s *Session) LoadFailure() models.LoadFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Updates signals that the observable state changed. Notifications coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// do runs fn on the loop goroutine and waits for it to return
func (s *Session) do(fn func(*sessionLoop)) error {
	applied := make(chan struct{})
	select {
	case s.commands <- func(l *sessionLoop) {
		defer close(applied)
		fn(l)
	}:
	case <-s.done:
		return ErrSessionClosed
	}
	<-applied
	return nil
}

func (s *Session) run() {
	l := &sessionLoop{store: NewMessageStore()}
	defer close(s.done)

	for {
		select {
		case fn := <-s.commands:
			fn(l)

		case r := <-s.results:
			s.applyHistory(l, r)

		case ev := <-l.events:
			s.applyEvent(l, ev)

		case <-l.retryC:
			l.retryC = nil
			if l.manager != nil {
				s.logger.Info("reconnecting", zap.Int("attempt", l.retries))
				l.manager.Connect()
			}

		case <-s.quit:
			s.deactivate(l)
			l.generation++
			l.store = NewMessageStore()
			s.publish(l, models.StateDisconnected, s.LoadFailure())
			return
		}
	}
}

// activate tears down the previous activation and starts a new one
func (s *Session) activate(l *sessionLoop, cred Credential) {
	s.deactivate(l)
	l.generation++
	l.credential = cred
	l.store = NewMessageStore()
	l.retries = 0
	l.wasDropped = false

	if !cred.Present() {
		s.logger.Info("no credential, messaging disabled")
		s.publish(l, models.StateDisconnected, models.LoadFailureUnauthenticated)
		return
	}

	s.fetchHistory(l)

	l.manager = NewConnectionManager(s.dialer, cred, s.logger)
	l.events = l.manager.Events()
	l.manager.Connect()

	s.publish(l, l.manager.State(), models.LoadFailureNone)
}

// deactivate releases everything the current activation holds
func (s *Session) deactivate(l *sessionLoop) {
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.cancelFetch = nil
	}
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
		l.retryC = nil
	}
	if l.manager != nil {
		l.manager.Teardown()
		l.manager = nil
		l.events = nil
	}
}

// fetchHistory loads history in the background and reports to the loop.
// Starting a fetch supersedes the one in flight.
func (s *Session) fetchHistory(l *sessionLoop) {
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelFetch = cancel
	l.fetch++

	generation, fetch := l.generation, l.fetch
	token := l.credential.Token
	go func() {
		msgs, err := s.history.LoadHistory(ctx, token, s.historyGroup)
		select {
		case s.results <- historyResult{generation: generation, fetch: fetch, messages: msgs, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) applyHistory(l *sessionLoop, r historyResult) {
	if r.generation != l.generation {
		s.logger.Debug("discarding history of a previous activation")
		return
	}
	if r.fetch != l.fetch {
		s.logger.Debug("discarding superseded history fetch", zap.Uint64("fetch", r.fetch))
		return
	}
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.cancelFetch = nil
	}

	failure := ClassifyLoadError(r.err)
	if r.err != nil {
		s.logger.Warn("failed to load messages", zap.Error(r.err), zap.Stringer("failure", failure))
	} else {
		added := l.store.Merge(r.messages)
		s.logger.Debug("history merged",
			zap.Int("received", len(r.messages)),
			zap.Int("added", len(added)),
			zap.Int("total", l.store.Len()))
	}
	s.publish(l, s.State(), failure)
}

func (s *Session) applyEvent(l *sessionLoop, ev Event) {
	state := s.State()

	switch ev.Kind {
	case EventMessage:
		l.store.Merge([]models.Message{ev.Message.Normalize()})

	case EventStateChanged:
		state = ev.State
		switch ev.State {
		case models.StateConnected:
			l.retries = 0
			if l.wasDropped {
				// Fill the gap left by the outage; overlapping messages merge away
				l.wasDropped = false
				s.fetchHistory(l)
			}
		case models.StateDisconnected:
			l.wasDropped = true
			s.scheduleReconnect(l)
		}
	}

	s.publish(l, state, s.LoadFailure())
}

func (s *Session) scheduleReconnect(l *sessionLoop) {
	delay, ok := s.reconnect.Schedule(l.retries)
	if !ok {
		if s.reconnect != nil {
			s.logger.Warn("giving up reconnecting", zap.Int("attempts", l.retries))
		}
		return
	}
	l.retries++
	l.retryTimer = time.NewTimer(delay)
	l.retryC = l.retryTimer.C
}

// publish makes the loop state visible to readers
func (s *Session) publish(l *sessionLoop, state models.ConnectionState, failure models.LoadFailure) {
	s.mu.Lock()
	s.state = state
	s.failure = failure
	s.messages = l.store.Messages()
	s.manager = l.manager
	s.mu.Unlock()

	s.notify()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
