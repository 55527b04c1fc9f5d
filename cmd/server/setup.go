package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"

	"github.com/depmaths/messagerie/internal/server"
)

// configFilename is the config file written by init and read by default
const configFilename = "messagerie-server.toml"

var errSetupCancelled = errors.New("setup cancelled")

const (
	fieldHost = iota
	fieldPort
	fieldDB
	fieldHistory
	numFields
)

var fieldLabels = [numFields]string{"Adresse d'écoute", "Port", "Base de données", "Historique (messages)"}

// setupModel collects the relay settings on first run
type setupModel struct {
	inputs    []textinput.Model
	focused   int
	done      bool
	cancelled bool
	err       string
}

func newSetupModel(defaults *server.Config) setupModel {
	values := [numFields]string{
		defaults.Host,
		strconv.Itoa(defaults.Port),
		defaults.DatabasePath,
		strconv.Itoa(defaults.HistoryLimit),
	}

	inputs := make([]textinput.Model, numFields)
	for i := range inputs {
		inputs[i] = textinput.New()
		inputs[i].Placeholder = values[i]
		inputs[i].SetValue(values[i])
		inputs[i].CharLimit = 128
	}
	inputs[fieldPort].CharLimit = 5
	inputs[fieldHost].Focus()

	return setupModel{inputs: inputs}
}

func (m setupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m setupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "tab", "down", "enter":
			if key.String() == "enter" && m.focused == numFields-1 {
				if _, err := m.config(); err != nil {
					m.err = err.Error()
					return m, nil
				}
				m.done = true
				return m, tea.Quit
			}
			m.focus(m.focused + 1)
			return m, nil

		case "shift+tab", "up":
			m.focus(m.focused - 1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m *setupModel) focus(i int) {
	m.inputs[m.focused].Blur()
	m.focused = (i + numFields) % numFields
	m.inputs[m.focused].Focus()
}

// config builds the relay configuration from the current field values
func (m setupModel) config() (*server.Config, error) {
	value := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	port, err := strconv.Atoi(value(fieldPort))
	if err != nil || port < 1 || port > 65535 {
		return nil, errors.New("le port doit être un nombre entre 1 et 65535")
	}
	limit, err := strconv.Atoi(value(fieldHistory))
	if err != nil || limit < 0 {
		return nil, errors.New("l'historique doit être un nombre positif")
	}
	if value(fieldDB) == "" {
		return nil, errors.New("le chemin de la base de données est requis")
	}

	return &server.Config{
		Host:         value(fieldHost),
		Port:         port,
		DatabasePath: value(fieldDB),
		HistoryLimit: limit,
	}, nil
}

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#bd93f9")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f8f8f2")).
			Background(lipgloss.Color("#bd93f9")).
			Bold(true).
			Padding(0, 2)
)

func (m setupModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Messagerie: configuration du relais"))
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("Tab/↑↓ pour naviguer · Entrée sur le dernier champ pour valider · Échap pour annuler"))
	b.WriteString("\n\n")

	for i, label := range fieldLabels {
		b.WriteString(labelStyle.Render(label))
		b.WriteString("\n  ")
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n\n")
	}

	if m.err != "" {
		b.WriteString(errStyle.Render("  ⚠ " + m.err))
		b.WriteString("\n")
	}
	return b.String()
}

// runSetup runs the interactive setup and writes the result to path
func runSetup(path string) (*server.Config, error) {
	result, err := tea.NewProgram(newSetupModel(server.DefaultConfig())).Run()
	if err != nil {
		return nil, fmt.Errorf("setup error: %w", err)
	}

	final := result.(setupModel)
	if final.cancelled || !final.done {
		return nil, errSetupCancelled
	}
	config, err := final.config()
	if err != nil {
		return nil, err
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	return config, nil
}
