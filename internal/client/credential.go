package client

import (
	"sync"

	"github.com/depmaths/messagerie/internal/models"
)

// Credential is the bearer credential consumed by the messaging session.
// An empty token means the user is not logged in.
type Credential struct {
	Token string       `json:"token"`
	User  *models.User `json:"user,omitempty"`
}

// Present reports whether a token is available
func (c Credential) Present() bool {
	return c.Token != ""
}

// DisplayName returns the name attached to outbound messages
func (c Credential) DisplayName() string {
	return c.User.DisplayName()
}

// CredentialGate exposes the current credential and notifies subscribers when the
// token changes. It reflects upstream auth state only; it never logs in or retries.
type CredentialGate struct {
	mu          sync.RWMutex
	current     Credential
	subscribers map[int]chan Credential
	nextID      int
}

// NewCredentialGate creates a gate holding the initial credential
func NewCredentialGate(initial Credential) *CredentialGate {
	return &CredentialGate{
		current:     initial,
		subscribers: make(map[int]chan Credential),
	}
}

// Current returns the credential (thread-safe)
func (g *CredentialGate) Current() Credential {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Set replaces the credential and notifies subscribers if the token changed
func (g *CredentialGate) Set(c Credential) {
	g.mu.Lock()
	defer g.mu.Unlock()

	changed := g.current.Token != c.Token
	g.current = c
	if !changed {
		return
	}
	for _, ch := range g.subscribers {
		offerLatest(ch, c)
	}
}

// Clear drops the credential
func (g *CredentialGate) Clear() {
	g.Set(Credential{})
}

// Subscribe returns a channel primed with the current credential and receiving every
// later change. A slow subscriber only ever sees the newest value.
func (g *CredentialGate) Subscribe() (<-chan Credential, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	ch := make(chan Credential, 1)
	ch <- g.current
	g.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// offerLatest replaces any pending value in ch with c. Callers hold the gate lock,
// so no other sender can refill the buffer in between.
func offerLatest(ch chan Credential, c Credential) {
	select {
	case ch <- c:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- c:
	default:
	}
}
