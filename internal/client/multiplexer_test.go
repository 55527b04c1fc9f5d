package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/models"
)

func TestSelect_GroupIsolation(t *testing.T) {
	req := require.New(t)
	messages := []models.Message{
		msg("1", models.DefaultGroup, "bonjour"),
		msg("2", "Étudiants", "salut"),
		msg("3", models.DefaultGroup, "ça va"),
		msg("4", "Professeurs", "réunion"),
	}

	req.Equal([]string{"1", "3"}, ids(Select(messages, models.DefaultGroup)))
	req.Equal([]string{"2"}, ids(Select(messages, "Étudiants")))
	req.Empty(Select(messages, "Admins"))

	// Switching back shows the same messages again
	req.Equal([]string{"1", "3"}, ids(Select(messages, models.DefaultGroup)))
}

func TestSelect_DoesNotAliasInput(t *testing.T) {
	req := require.New(t)
	messages := []models.Message{msg("1", "G", "a"), msg("2", "H", "b")}

	view := Select(messages, "G")
	view[0].Text = "changed"

	req.Equal("a", messages[0].Text)
}

func TestGroupCounts(t *testing.T) {
	messages := []models.Message{
		msg("1", models.DefaultGroup, "a"),
		msg("2", "Étudiants", "b"),
		msg("3", models.DefaultGroup, "c"),
	}

	require.Equal(t, map[string]int{models.DefaultGroup: 2, "Étudiants": 1}, GroupCounts(messages))
}
