package client

import (
	"github.com/depmaths/messagerie/internal/models"
)

// MessageStore is the ordered, deduplicated message sequence of one session.
// It only grows; positions of merged messages never change.
// It is not safe for concurrent use: the session loop is its only writer.
type MessageStore struct {
	messages []models.Message
	seen     map[string]struct{}
}

// NewMessageStore creates an empty store
func NewMessageStore() *MessageStore {
	return &MessageStore{
		seen: make(map[string]struct{}),
	}
}

// Merge appends batch after the existing content, dropping every entry whose key
// already appeared earlier. It returns the messages actually appended.
func (s *MessageStore) Merge(batch []models.Message) []models.Message {
	var added []models.Message
	for _, msg := range batch {
		key := msg.Key()
		if key != "" {
			if _, dup := s.seen[key]; dup {
				continue
			}
			s.seen[key] = struct{}{}
		}
		s.messages = append(s.messages, msg)
		added = append(added, msg)
	}
	return added
}

// Messages returns the ordered view. The slice is clipped so appends by the
// caller never write into the store.
func (s *MessageStore) Messages() []models.Message {
	return s.messages[:len(s.messages):len(s.messages)]
}

// Len returns the number of stored messages
func (s *MessageStore) Len() int {
	return len(s.messages)
}
