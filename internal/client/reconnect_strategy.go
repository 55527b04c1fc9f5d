package client

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectStrategy paces the reconnection attempts a session makes after its
// transport drops. A nil strategy never reconnects.
//
// Attempts are counted by the session from the drop; a successful handshake
// starts the count over.
type ReconnectStrategy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Jitter shortens each delay by a random fraction of at most this value, in [0, 1].
	// Clients dropped by the same relay restart do not redial in lockstep.
	Jitter float64
}

// DefaultReconnectStrategy returns the policy used when reconnection is enabled
// without further settings
func DefaultReconnectStrategy() *ReconnectStrategy {
	return &ReconnectStrategy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.2,
	}
}

// NextDelay returns the wait before the given attempt: exponential backoff
// capped at MaxDelay, then shortened by the jitter
func (rs *ReconnectStrategy) NextDelay(attempt int) time.Duration {
	delay := float64(rs.InitialDelay) * math.Pow(rs.BackoffFactor, float64(attempt))
	if delay > float64(rs.MaxDelay) {
		delay = float64(rs.MaxDelay)
	}
	if j := min(max(rs.Jitter, 0), 1); j > 0 {
		delay -= delay * j * rand.Float64()
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether the given attempt is still allowed
func (rs *ReconnectStrategy) ShouldRetry(attempt int) bool {
	return rs != nil && attempt < rs.MaxRetries
}

// Schedule returns the wait before the given attempt, or false once the
// retries are exhausted or reconnection is off
func (rs *ReconnectStrategy) Schedule(attempt int) (time.Duration, bool) {
	if !rs.ShouldRetry(attempt) {
		return 0, false
	}
	return rs.NextDelay(attempt), true
}
