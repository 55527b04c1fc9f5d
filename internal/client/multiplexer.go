package client

import (
	"github.com/samber/lo"

	"github.com/depmaths/messagerie/internal/models"
)

// Select returns the messages of one group, in store order.
// Messages of other groups stay in the store and reappear when their group is selected again.
func Select(messages []models.Message, group string) []models.Message {
	return lo.Filter(messages, func(m models.Message, _ int) bool {
		return m.Group == group
	})
}

// GroupCounts returns the number of messages per group
func GroupCounts(messages []models.Message) map[string]int {
	return lo.CountValuesBy(messages, func(m models.Message) string {
		return m.Group
	})
}
