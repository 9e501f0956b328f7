package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit    key.Binding
	Help    key.Binding
	TabNext key.Binding
	TabPrev key.Binding
	Enter   key.Binding
	Back    key.Binding
	Disable key.Binding
	Delete  key.Binding
	Proxy   key.Binding
	Daemon  key.Binding
	Probe   key.Binding
	TestOne key.Binding
	TestAll key.Binding
	Refresh key.Binding
	Confirm key.Binding
	Decline key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	TabNext: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next tab"),
	),
	TabPrev: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev tab"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "enable/switch"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Disable: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disable"),
	),
	Delete: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "delete node"),
	),
	Proxy: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "system proxy"),
	),
	Daemon: key.NewBinding(
		key.WithKeys("D"),
		key.WithHelp("D", "daemon"),
	),
	Probe: key.NewBinding(
		key.WithKeys("P"),
		key.WithHelp("P", "probe"),
	),
	TestOne: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "test latency"),
	),
	TestAll: key.NewBinding(
		key.WithKeys("T"),
		key.WithHelp("T", "test all"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y", "enter"),
		key.WithHelp("y", "confirm"),
	),
	Decline: key.NewBinding(
		key.WithKeys("n", "esc", "ctrl+c"),
		key.WithHelp("n", "cancel"),
	),
}

// ShortHelp returns a compact list for the help bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.TabNext, k.Enter, k.Disable, k.Proxy, k.TestOne, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns grouped bindings for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.TabNext, k.TabPrev, k.Enter, k.Back},
		{k.Disable, k.Delete, k.Proxy, k.Daemon},
		{k.Probe, k.TestOne, k.TestAll, k.Refresh},
		{k.Help, k.Quit},
	}
}
