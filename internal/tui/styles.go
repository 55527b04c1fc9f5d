package tui

import "github.com/charmbracelet/lipgloss"

// Dracula palette
const (
	colorBackground = "#282a36"
	colorSelection  = "#44475a"
	colorForeground = "#f8f8f2"
	colorComment    = "#6272a4"
	colorCyan       = "#8be9fd"
	colorGreen      = "#50fa7b"
	colorOrange     = "#ffb86c"
	colorPurple     = "#bd93f9"
	colorRed        = "#ff5555"
)

type styles struct {
	header      lipgloss.Style
	groupTab    lipgloss.Style
	groupActive lipgloss.Style
	sender      lipgloss.Style
	system      lipgloss.Style
	empty       lipgloss.Style
	input       lipgloss.Style
	statusBar   lipgloss.Style
	connected   lipgloss.Style
	connecting  lipgloss.Style
	offline     lipgloss.Style
	failure     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorForeground)).
			Background(lipgloss.Color(colorSelection)).
			Bold(true).
			Padding(0, 1),
		groupTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorComment)).
			Padding(0, 1),
		groupActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorBackground)).
			Background(lipgloss.Color(colorPurple)).
			Bold(true).
			Padding(0, 1),
		sender: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorPurple)).
			Bold(true),
		system: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorComment)).
			Italic(true),
		empty: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorComment)).
			Italic(true),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPurple)).
			Padding(0, 1),
		statusBar: lipgloss.NewStyle().
			Background(lipgloss.Color(colorSelection)).
			Foreground(lipgloss.Color(colorForeground)).
			Padding(0, 1),
		connected:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		connecting: lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)),
		offline:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		failure:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)),
	}
}

