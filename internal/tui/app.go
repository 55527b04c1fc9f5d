// Package tui is a terminal front end for a messaging session.
package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/depmaths/messagerie/internal/client"
	"github.com/depmaths/messagerie/internal/models"
)

// sessionUpdateMsg is sent whenever the session publishes a change
type sessionUpdateMsg struct{}

// App is the bubbletea model rendering one session
type App struct {
	session *client.Session
	gate    *client.CredentialGate
	styles  styles

	width  int
	height int

	groups     []string
	groupIndex int

	input    textinput.Model
	viewport viewport.Model
}

// NewApp creates the model. The session is expected to be started by the caller.
func NewApp(session *client.Session, gate *client.CredentialGate) *App {
	input := textinput.New()
	input.Placeholder = "Votre message..."
	input.CharLimit = 2000
	input.Width = 50
	input.Focus()

	return &App{
		session:  session,
		gate:     gate,
		styles:   defaultStyles(),
		groups:   models.Groups,
		input:    input,
		viewport: viewport.New(80, 20),
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.waitForUpdate())
}

// waitForUpdate blocks until the session publishes a change
func (a *App) waitForUpdate() tea.Cmd {
	updates := a.session.Updates()
	return func() tea.Msg {
		<-updates
		return sessionUpdateMsg{}
	}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q", "esc":
			return a, tea.Quit
		case "tab":
			a.selectGroup(a.groupIndex + 1)
			return a, nil
		case "shift+tab":
			a.selectGroup(a.groupIndex - 1)
			return a, nil
		case "enter":
			a.handleSend()
			return a, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSize()
		a.refresh()

	case sessionUpdateMsg:
		a.refresh()
		cmds = append(cmds, a.waitForUpdate())
	}

	if a.gate.Current().Present() {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	header := a.styles.header.Width(a.width).Render("Messagerie")
	tabs := a.renderGroupTabs()
	chat := a.viewport.View()
	input := a.styles.input.Width(max(a.width-2, 10)).Render(a.inputView())
	status := a.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, header, tabs, chat, input, status)
}

func (a *App) selectGroup(index int) {
	n := len(a.groups)
	a.groupIndex = ((index % n) + n) % n
	a.session.SetActiveGroup(a.groups[a.groupIndex])
	a.refresh()
}

func (a *App) handleSend() {
	text := a.input.Value()
	if a.session.Send(text, a.session.ActiveGroup()) {
		a.input.Reset()
	}
}

func (a *App) inputView() string {
	if !a.gate.Current().Present() {
		return a.styles.empty.Render("Connectez-vous pour écrire (messagerie login)")
	}
	return a.input.View()
}

// refresh re-renders the visible messages of the active group
func (a *App) refresh() {
	content := renderMessages(a.styles, a.session.Visible(), a.session.LoadFailure())
	atBottom := a.viewport.AtBottom()
	a.viewport.SetContent(content)
	if atBottom {
		a.viewport.GotoBottom()
	}
}

func (a *App) updateViewportSize() {
	// header, tabs, bordered input and status bar
	chrome := 1 + 1 + 3 + 1
	a.viewport.Width = a.width
	a.viewport.Height = max(a.height-chrome, 1)
	a.input.Width = max(a.width-6, 10)
}
