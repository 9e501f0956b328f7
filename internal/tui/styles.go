package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Adaptive so both light and dark terminals stay readable.
var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#7B2FBE", Dark: "#B97EFF"}
	colorOK     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	colorBad    = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#FF4672"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FFA500"}
	colorFg     = lipgloss.AdaptiveColor{Light: "#1A1A2E", Dark: "#FFFDF5"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	colorLine   = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	colorRowBg  = lipgloss.AdaptiveColor{Light: "#E8E0F0", Dark: "#2A1A3E"}
	colorOnFill = lipgloss.Color("#FFFFFF")
)

var (
	accentStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	valueStyle  = lipgloss.NewStyle().Foreground(colorFg)
	ruleStyle   = lipgloss.NewStyle().Foreground(colorLine)

	titleStyle   = accentStyle.MarginBottom(1)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarn)
	spinnerStyle = lipgloss.NewStyle().Foreground(colorAccent)
)

// Header and footer.
var (
	logoStyle        = accentStyle.PaddingRight(2)
	activeTabStyle   = accentStyle.Underline(true).Padding(0, 2)
	inactiveTabStyle = dimStyle.Padding(0, 2)

	runningPillStyle = filled(colorOK)
	idlePillStyle    = filled(colorBad)
	busyPillStyle    = filled(colorWarn)

	helpBarStyle  = dimStyle.Padding(0, 1)
	helpKeyStyle  = accentStyle
	helpDescStyle = dimStyle
	helpSepStyle  = ruleStyle
)

// Settings rows.
var (
	labelStyle    = valueStyle.Width(18)
	selectedStyle = accentStyle
)

// Status card.
var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorLine).
			Padding(1, 2)
	cardTitleStyle = titleStyle
	cardLabelStyle = dimStyle.Width(14)
	cardValueStyle = valueStyle
)

// Confirmation dialog.
var (
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWarn).
			Padding(1, 3)
	dialogTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWarn).MarginBottom(1)
	dialogOKStyle     = filled(colorBad).Padding(0, 2)
	dialogCancelStyle = lipgloss.NewStyle().Foreground(colorFg).Background(colorLine).Padding(0, 2)
)

var (
	notifSuccessStyle = successStyle.Padding(0, 1)
	notifErrorStyle   = errorStyle.Padding(0, 1)
)

func filled(bg lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(colorOnFill).Background(bg).Padding(0, 1)
}

// rule draws a horizontal separator width cells wide.
func rule(width int) string {
	return ruleStyle.Render(strings.Repeat("─", max(width, 0)))
}

var (
	latencyFast = lipgloss.NewStyle().Foreground(colorOK)
	latencyOK   = lipgloss.NewStyle().Foreground(colorWarn)
	latencySlow = lipgloss.NewStyle().Foreground(colorBad)
)

func latencyStyle(ms int) lipgloss.Style {
	switch {
	case ms < 100:
		return latencyFast
	case ms < 500:
		return latencyOK
	default:
		return latencySlow
	}
}
