package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/latency"
	"hunter/internal/storage"
	pkgerrors "hunter/pkg/errors"
)

// Tab indices.
const (
	tabNodes    = 0
	tabStatus   = 1
	tabSettings = 2
	tabCount    = 3
)

// Controller is the session API the dashboard drives.
type Controller interface {
	State(ctx context.Context) (*types.State, error)
	Reconcile(ctx context.Context) (*types.State, error)
	Enable(ctx context.Context, name string) (*types.State, error)
	Switch(ctx context.Context, name string) (*types.State, error)
	Disable(ctx context.Context) (*types.State, error)
	Delete(ctx context.Context, index int) (bool, error)
	SetSystemProxy(ctx context.Context, on bool) (*types.State, error)
	SetDaemon(ctx context.Context, on bool) (*types.State, error)
	Probe(ctx context.Context) (time.Duration, error)
	UpdateSettings(ctx context.Context, s core.Settings) error
}

// Model is the root BubbleTea model.
type Model struct {
	// Dependencies.
	store    storage.Storage
	ctrl     Controller
	program  sender
	prompter types.Prompter

	// Dimensions.
	width  int
	height int

	// Navigation.
	activeTab int
	showHelp  bool

	// Session state.
	state   *types.State
	busy    bool
	aborted bool

	// Pending confirmation, if any.
	dialog      *confirmModel
	dialogReply chan bool

	// Tab models.
	nodesTab    nodesModel
	statusTab   statusModel
	settingsTab settingsModel

	// Notification.
	notification    string
	notificationErr bool
	notifVersion    int

	// Spinner for async operations.
	spinner spinner.Model
}

// Deps holds all dependencies injected into the TUI.
type Deps struct {
	Storage    storage.Storage
	Controller Controller
}

// NewModel creates a new root Model.
func NewModel(deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &Model{
		store:       deps.Storage,
		ctrl:        deps.Controller,
		activeTab:   tabNodes,
		spinner:     s,
		nodesTab:    newNodesModel(),
		statusTab:   newStatusModel(),
		settingsTab: newSettingsModel(),
	}
}

// Aborted reports whether the user quit from a conflict dialog.
func (m *Model) Aborted() bool {
	return m.aborted
}

func (m *Model) Init() tea.Cmd {
	m.busy = true
	return tea.Batch(
		reconcile(m.ctrl, m.prompter),
		loadSettings(m.store),
		statusTick(),
		m.spinner.Tick,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	prevNotifVersion := m.notifVersion

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		ch := m.contentHeight()
		m.nodesTab.setSize(msg.Width, ch)
		m.statusTab.setSize(msg.Width, ch)
		m.settingsTab.setSize(msg.Width, ch)
		return m, nil

	case confirmRequestMsg:
		d := newConfirmModel(msg.prompt)
		m.dialog = &d
		m.dialogReply = msg.reply
		return m, nil

	case tea.KeyMsg:
		// A pending confirmation captures every key.
		if m.dialog != nil {
			m.dialog.Update(msg)
			if m.dialog.answered {
				m.dialogReply <- m.dialog.ok
				m.dialog = nil
				m.dialogReply = nil
			}
			return m, nil
		}
		if cmd := m.handleGlobalKey(msg); cmd != nil {
			return m, cmd
		}

	// Data loading.
	case stateLoadedMsg:
		if msg.err == nil {
			m.applyState(msg.state, &cmds)
		}
	case settingsLoadedMsg:
		if msg.err == nil {
			m.settingsTab.setSettings(msg.settings)
		}
	case latenciesLoadedMsg:
		m.nodesTab.setLatencies(msg.latencies)

	// Transitions.
	case transitionStartedMsg:
		m.busy = true
	case transitionResultMsg:
		m.busy = false
		if errors.Is(msg.err, pkgerrors.ErrAborted) {
			m.aborted = true
			return m, tea.Quit
		}
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
			cmds = append(cmds, loadState(m.ctrl))
		} else {
			if msg.op != "reconcile" {
				m.setNotification(msg.op+": done", false)
			}
			m.applyState(msg.state, &cmds)
		}
	case deleteResultMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.setNotification(fmt.Sprintf("Delete failed: %v", msg.err), true)
		case msg.deleted:
			m.setNotification(fmt.Sprintf("Deleted %s", displayName(msg.name)), false)
		default:
			m.setNotification("Delete cancelled", false)
		}
		cmds = append(cmds, loadState(m.ctrl))

	// Status polling.
	case statusTickMsg:
		if !m.busy {
			cmds = append(cmds, loadState(m.ctrl))
		}
		cmds = append(cmds, statusTick())
	case probeResultMsg:
		m.statusTab.updateProbe(msg)
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Probe failed: %v", msg.err), true)
		} else {
			m.setNotification(fmt.Sprintf("Probe: %dms", msg.elapsed.Milliseconds()), false)
		}

	// Latency.
	case latencyTestProgressMsg:
		m.nodesTab.updateProgress(msg)
	case latencyTestDoneMsg:
		m.nodesTab.testingBatch = false
		m.nodesTab.adjustTableHeight()
		m.setNotification(
			fmt.Sprintf("Tested %d: %d ok, %d failed",
				msg.batch.Tested, msg.batch.Succeeded, msg.batch.Failed), false)
		cmds = append(cmds, loadLatencies(m.store, m.nodesTab.nodes))
	case singleLatencyDoneMsg:
		m.nodesTab.testingSingle = false
		m.nodesTab.adjustTableHeight()
		if msg.result.Latency.Success {
			m.setNotification(
				fmt.Sprintf("%s: %dms", msg.result.Node.Name, *msg.result.Latency.LatencyMS), false)
		} else {
			m.setNotification(fmt.Sprintf("%s: failed", msg.result.Node.Name), true)
		}
		cmds = append(cmds, loadLatencies(m.store, m.nodesTab.nodes))

	// Settings.
	case settingSavedMsg:
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Save failed: %v", msg.err), true)
			cmds = append(cmds, loadSettings(m.store))
		} else {
			m.setNotification(fmt.Sprintf("Saved %s", msg.key), false)
		}

	// Notification.
	case clearNotificationMsg:
		if msg.version == m.notifVersion {
			m.notification = ""
			m.notificationErr = false
		}
	}

	// Spinner.
	if m.busy || m.nodesTab.testingSingle || m.nodesTab.testingBatch || m.statusTab.probing {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Schedule notification auto-clear when a new notification was set.
	if m.notifVersion > prevNotifVersion && m.notification != "" {
		cmds = append(cmds, clearNotification(4*time.Second, m.notifVersion))
	}

	// Delegate to active tab.
	switch m.activeTab {
	case tabNodes:
		cmds = append(cmds, m.nodesTab.Update(msg, m))
	case tabStatus:
		cmds = append(cmds, m.statusTab.Update(msg, m))
	case tabSettings:
		cmds = append(cmds, m.settingsTab.Update(msg, m))
	}

	return m, tea.Batch(cmds...)
}

// applyState stores st and reloads latencies when the node list changed.
func (m *Model) applyState(st *types.State, cmds *[]tea.Cmd) {
	if st == nil {
		return
	}
	changed := m.state == nil || len(m.state.Nodes) != len(st.Nodes)
	m.state = st
	m.nodesTab.setNodes(st.Nodes)
	m.settingsTab.setRunning(st.Phase == types.PhaseRunning)
	if changed && m.store != nil {
		*cmds = append(*cmds, loadLatencies(m.store, st.Nodes))
	}
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := renderHeader(m.activeTab, m.state, m.busy, m.width)

	var content string
	switch {
	case m.dialog != nil:
		content = lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, m.dialog.View(m.width))
	case m.activeTab == tabNodes:
		content = m.nodesTab.View(m.spinner)
	case m.activeTab == tabStatus:
		content = m.statusTab.View(m.state)
	case m.activeTab == tabSettings:
		content = m.settingsTab.View()
	}

	var notif string
	if m.notification != "" {
		if m.notificationErr {
			notif = notifErrorStyle.Render("! " + m.notification)
		} else {
			notif = notifSuccessStyle.Render("* " + m.notification)
		}
	}

	helpText := renderHelpBar(m.showHelp)
	footer := renderFooter(helpText, m.width)

	parts := []string{header}
	if notif != "" {
		parts = append(parts, notif)
	}
	parts = append(parts, content, footer)
	output := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Force exactly m.height lines to prevent BubbleTea rendering drift.
	return forceHeight(output, m.width, m.height)
}

// forceHeight ensures the string has exactly `height` lines, each padded to `width`.
// This prevents BubbleTea from leaving ghost lines when switching tabs.
func forceHeight(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	blank := strings.Repeat(" ", width)
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) contentHeight() int {
	overhead := 5
	if m.showHelp {
		overhead += 3
	}
	h := m.height - overhead
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) handleGlobalKey(msg tea.KeyMsg) tea.Cmd {
	// Don't intercept while a setting is being edited.
	if m.activeTab == tabSettings && m.settingsTab.editing {
		return nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return nil

	case key.Matches(msg, keys.TabNext):
		m.activeTab = (m.activeTab + 1) % tabCount
		return nil

	case key.Matches(msg, keys.TabPrev):
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return nil

	case key.Matches(msg, keys.Disable):
		if m.state != nil && !m.busy {
			m.busy = true
			return disableSession(m.ctrl, m.prompter)
		}
		return nil

	case key.Matches(msg, keys.Proxy):
		if m.state != nil && !m.busy {
			m.busy = true
			return setSystemProxy(m.ctrl, m.prompter, !m.state.ProxyEnabled)
		}
		return nil

	case key.Matches(msg, keys.Daemon):
		if m.state != nil && m.state.Phase == types.PhaseRunning && !m.busy {
			m.busy = true
			return setDaemon(m.ctrl, m.prompter, !m.state.Daemon)
		}
		return nil

	case key.Matches(msg, keys.Probe):
		if !m.statusTab.probing {
			m.statusTab.probing = true
			return runProbe(m.ctrl)
		}
		return nil

	case key.Matches(msg, keys.Refresh):
		return tea.Batch(
			loadState(m.ctrl),
			loadSettings(m.store),
		)
	}

	return nil
}

func (m *Model) setNotification(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
	m.notifVersion++
}

// latencyConfig builds a tester config from the loaded settings.
func (m *Model) latencyConfig() latency.TesterConfig {
	cfg := latency.TesterConfig{}
	settings := m.settingsTab.settings
	if v, ok := settings[storage.SettingLatencyWorkers]; ok {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Workers = n
		}
	}
	if v, ok := settings[storage.SettingLatencyTimeout]; ok {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Timeout = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}

func displayName(name string) string {
	if name == "" {
		return "(empty)"
	}
	return name
}

// NewProgram creates a bubbletea program with alt screen. Confirmations raised
// by transitions started from the dashboard are shown as dialogs.
func NewProgram(deps Deps) (*tea.Program, *Model) {
	m := NewModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p
	m.prompter = &programPrompter{program: p}
	return p, m
}
