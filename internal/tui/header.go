package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"hunter/internal/core/types"
)

var tabNames = []string{"Nodes", "Status", "Settings"}

func renderHeader(activeTab int, st *types.State, busy bool, width int) string {
	logo := logoStyle.Render("HUNTER")

	var pill string
	switch {
	case busy:
		pill = busyPillStyle.Render(" WORKING ")
	case st != nil && st.Conflict != nil:
		pill = busyPillStyle.Render(fmt.Sprintf(" CONFLICT pid %d ", st.Conflict.PID))
	case st != nil && st.Phase == types.PhaseRunning:
		label := fmt.Sprintf(" %s ", st.Node)
		if !st.ProxyEnabled {
			label = fmt.Sprintf(" %s (proxy off) ", st.Node)
		}
		pill = runningPillStyle.Render(label)
	default:
		pill = idlePillStyle.Render(" IDLE ")
	}

	var tabs []string
	for i, name := range tabNames {
		if i == activeTab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	// Logo left, pill right-aligned.
	pillWidth := lipgloss.Width(pill)
	logoWidth := lipgloss.Width(logo)
	gap := width - logoWidth - pillWidth
	if gap < 1 {
		gap = 1
	}
	topRow := logo + strings.Repeat(" ", gap) + pill

	return lipgloss.JoinVertical(lipgloss.Left, topRow, tabBar, rule(width))
}

func renderFooter(helpText string, width int) string {
	return lipgloss.JoinVertical(lipgloss.Left, rule(width), helpBarStyle.Render(helpText))
}

func renderHelpBar(showFull bool) string {
	if showFull {
		return renderFullHelp()
	}
	return renderShortHelp()
}

func renderShortHelp() string {
	bindings := keys.ShortHelp()
	var parts []string
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		k := helpKeyStyle.Render(b.Help().Key)
		d := helpDescStyle.Render(b.Help().Desc)
		parts = append(parts, k+" "+d)
	}
	return strings.Join(parts, helpSepStyle.Render(" | "))
}

func renderFullHelp() string {
	groups := keys.FullHelp()
	var lines []string
	for _, group := range groups {
		var parts []string
		for _, b := range group {
			if !b.Enabled() {
				continue
			}
			k := helpKeyStyle.Render(b.Help().Key)
			d := helpDescStyle.Render(b.Help().Desc)
			parts = append(parts, k+" "+d)
		}
		lines = append(lines, strings.Join(parts, helpSepStyle.Render("  ")))
	}
	return strings.Join(lines, "\n")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
