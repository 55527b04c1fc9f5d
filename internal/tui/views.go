package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/depmaths/messagerie/internal/client"
	"github.com/depmaths/messagerie/internal/models"
)

const (
	textUnauthenticated = "Connectez-vous pour voir les messages."
	textFailed          = "Impossible de charger les messages."
	textEmptyGroup      = "Aucun message pour ce groupe."
)

// renderMessages renders a group view, or the message matching the load failure
func renderMessages(st styles, msgs []models.Message, failure models.LoadFailure) string {
	switch failure {
	case models.LoadFailureUnauthenticated:
		return st.empty.Render(textUnauthenticated)
	case models.LoadFailureFailed:
		return st.empty.Render(textFailed)
	}
	if len(msgs) == 0 {
		return st.empty.Render(textEmptyGroup)
	}

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.IsSystemMessage() {
			b.WriteString(st.system.Render(m.Sender + ": " + m.Text))
			continue
		}
		b.WriteString(st.sender.Render(m.Sender + ":"))
		b.WriteString(" ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// tabLabel names a group tab, with its message count when it has any
func tabLabel(group string, count int) string {
	if count == 0 {
		return group
	}
	return fmt.Sprintf("%s (%d)", group, count)
}

func (a *App) renderGroupTabs() string {
	tabs := make([]string, 0, len(a.groups))
	active := a.session.ActiveGroup()
	counts := client.GroupCounts(a.session.Messages())
	for _, g := range a.groups {
		label := tabLabel(g, counts[g])
		if g == active {
			tabs = append(tabs, a.styles.groupActive.Render(label))
		} else {
			tabs = append(tabs, a.styles.groupTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderStatusBar renders the bottom status bar
func (a *App) renderStatusBar() string {
	state := a.session.State()

	var left string
	switch state {
	case models.StateConnected:
		left = a.styles.connected.Render("● " + state.String())
	case models.StateConnecting:
		left = a.styles.connecting.Render("◐ " + state.String())
	default:
		left = a.styles.offline.Render("○ " + state.String())
	}
	left = "Statut: " + left

	if failure := a.session.LoadFailure(); failure != models.LoadFailureNone {
		left += " · " + a.styles.failure.Render(failure.String())
	}

	if cred := a.gate.Current(); cred.Present() {
		left += "  |  " + cred.DisplayName()
	}

	right := "Tab: groupe  |  Entrée: envoyer  |  Ctrl+C: quitter"

	space := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	bar := left + "  " + right
	if space > 0 {
		bar = left + strings.Repeat(" ", space) + right
	}
	return a.styles.statusBar.Width(a.width).Render(bar)
}
