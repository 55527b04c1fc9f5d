package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultGroup is the conversation group every session starts on
	DefaultGroup = "Général"

	// AnonymousSender is used when a message or credential carries no name
	AnonymousSender = "Anonyme"

	// SystemSender authors locally synthesized notices
	SystemSender = "Système"

	// ConnectedNotice is the text of the notice emitted on each successful handshake
	ConnectedNotice = "Connecté au chat"
)

// Groups lists the conversation groups offered by the portal
var Groups = []string{DefaultGroup, "Étudiants", "Professeurs", "Admins"}

// Message represents a chat message as exchanged with the remote services
type Message struct {
	ID        string     `json:"_id,omitempty"`       // Server-issued, or synthetic for local notices
	Text      string     `json:"text"`                // Non-empty for user-authored messages
	Sender    string     `json:"sender"`              // Display name
	Group     string     `json:"group"`               // Conversation channel key
	CreatedAt *time.Time `json:"createdAt,omitempty"` // Absent for freshly composed outbound messages
}

// NewSystemMessage creates a local notice in the default group.
// Its id is synthetic and carries a weaker uniqueness guarantee than server ids.
func NewSystemMessage(text string, at time.Time) Message {
	return Message{
		ID:     SyntheticID("sys", at),
		Text:   text,
		Sender: SystemSender,
		Group:  DefaultGroup,
	}
}

// SyntheticID derives a local identifier from a message kind and a timestamp
func SyntheticID(kind string, at time.Time) string {
	return fmt.Sprintf("%s-%d", kind, at.UnixNano())
}

// IsSystemMessage returns true for locally synthesized notices
func (m Message) IsSystemMessage() bool {
	return m.Sender == SystemSender && strings.HasPrefix(m.ID, "sys-")
}

// Normalize fills the sender and group fallbacks. Id, text and timestamp are kept as-is.
func (m Message) Normalize() Message {
	if strings.TrimSpace(m.Sender) == "" {
		m.Sender = AnonymousSender
	}
	if strings.TrimSpace(m.Group) == "" {
		m.Group = DefaultGroup
	}
	return m
}

// Key returns the identity used for deduplication.
// An empty key means the message has no stable identity and is never a duplicate.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	if m.CreatedAt != nil {
		return "ts-" + m.Group + "-" + m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return ""
}
