package protocol

import (
	"encoding/json"
)

// OpCode represents the type of WebSocket message
type OpCode int

const (
	// Client -> Server operations
	OpSendMessage OpCode = 3 // Send a chat message

	// Server -> Client operations
	OpDispatch OpCode = 10 // Event dispatch
	OpError    OpCode = 16 // Request rejected
)

// EventType represents the type of dispatched event
type EventType string

const (
	EventMessageCreate EventType = "MESSAGE_CREATE"
)

// Message represents a WebSocket message envelope
type Message struct {
	Op   OpCode          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"` // Sequence number for dispatches
	Type EventType       `json:"t,omitempty"` // Event type for dispatches
}

// NewMessage creates a new protocol message
func NewMessage(op OpCode, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Op:   op,
		Data: rawData,
	}, nil
}

// NewDispatch creates a new dispatch message
func NewDispatch(eventType EventType, seq int64, data interface{}) (*Message, error) {
	msg, err := NewMessage(OpDispatch, data)
	if err != nil {
		return nil, err
	}
	msg.Seq = &seq
	msg.Type = eventType
	return msg, nil
}

// Decode unmarshals the envelope payload into v
func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// ErrorPayload represents an error response
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrorCodeUnknown        = 0
	ErrorCodeUnauthorized   = 4001
	ErrorCodeInvalidPayload = 4002
	ErrorCodeServerError    = 4006
)
