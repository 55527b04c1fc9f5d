package models

// ConnectionState represents the state of the push connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name shown in the status bar
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// LoadFailure classifies the outcome of the last history fetch
type LoadFailure int

const (
	LoadFailureNone LoadFailure = iota
	LoadFailureUnauthenticated
	LoadFailureFailed
)

// String returns the failure name
func (f LoadFailure) String() string {
	switch f {
	case LoadFailureNone:
		return "none"
	case LoadFailureUnauthenticated:
		return "unauthenticated"
	case LoadFailureFailed:
		return "failed"
	default:
		return "unknown"
	}
}
