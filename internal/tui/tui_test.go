package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

type stubController struct {
	settings []core.Settings
}

func (s *stubController) State(ctx context.Context) (*types.State, error) {
	return &types.State{Phase: types.PhaseIdle}, nil
}
func (s *stubController) Reconcile(ctx context.Context) (*types.State, error) { return s.State(ctx) }
func (s *stubController) Enable(ctx context.Context, name string) (*types.State, error) {
	return s.State(ctx)
}
func (s *stubController) Switch(ctx context.Context, name string) (*types.State, error) {
	return s.State(ctx)
}
func (s *stubController) Disable(ctx context.Context) (*types.State, error) { return s.State(ctx) }
func (s *stubController) Delete(ctx context.Context, index int) (bool, error) { return true, nil }
func (s *stubController) SetSystemProxy(ctx context.Context, on bool) (*types.State, error) {
	return s.State(ctx)
}
func (s *stubController) SetDaemon(ctx context.Context, on bool) (*types.State, error) {
	return s.State(ctx)
}
func (s *stubController) Probe(ctx context.Context) (time.Duration, error) { return 0, nil }
func (s *stubController) UpdateSettings(ctx context.Context, st core.Settings) error {
	s.settings = append(s.settings, st)
	return nil
}

func TestConfirmModelKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  tea.Msg
		done bool
		ok   bool
	}{
		{"yes", runeKey('y'), true, true},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, true, true},
		{"no", runeKey('n'), true, false},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true, false},
		{"other key", runeKey('z'), false, false},
		{"not a key", tea.WindowSizeMsg{Width: 80}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newConfirmModel(types.Prompt{Title: "t", Message: "m"})
			m.Update(tt.msg)
			if m.answered != tt.done || m.ok != tt.ok {
				t.Fatalf("answered=%v ok=%v, want %v %v", m.answered, m.ok, tt.done, tt.ok)
			}
		})
	}
}

func TestConfirmModelFirstAnswerSticks(t *testing.T) {
	t.Parallel()

	m := newConfirmModel(types.Prompt{})
	m.Update(runeKey('n'))
	m.Update(runeKey('y'))
	if m.ok {
		t.Fatalf("expected first answer kept")
	}
	if m.prompt.OK != "OK" || m.prompt.Cancel != "Cancel" {
		t.Fatalf("expected default labels, got %+v", m.prompt)
	}
}

type answeringSender struct {
	answer bool
	got    []types.Prompt
}

func (s *answeringSender) Send(msg tea.Msg) {
	if req, ok := msg.(confirmRequestMsg); ok {
		s.got = append(s.got, req.prompt)
		req.reply <- s.answer
	}
}

type silentSender struct{}

func (silentSender) Send(tea.Msg) {}

func TestProgramPrompter(t *testing.T) {
	t.Parallel()

	s := &answeringSender{answer: true}
	p := &programPrompter{program: s}
	ok, err := p.Confirm(context.Background(), types.Prompt{Title: "Delete node: n1"})
	if err != nil || !ok {
		t.Fatalf("Confirm() = %v, %v", ok, err)
	}
	if len(s.got) != 1 || s.got[0].Title != "Delete node: n1" {
		t.Fatalf("unexpected prompts: %+v", s.got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = &programPrompter{program: silentSender{}}
	if _, err := p.Confirm(ctx, types.Prompt{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestModelRoutesKeysToDialog(t *testing.T) {
	t.Parallel()

	m := NewModel(Deps{Controller: &stubController{}})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	reply := make(chan bool, 1)
	m.Update(confirmRequestMsg{prompt: types.Prompt{Title: "Process conflict"}, reply: reply})
	if m.dialog == nil {
		t.Fatalf("expected dialog shown")
	}

	// Global keys are swallowed while the dialog is up.
	m.Update(runeKey('?'))
	if m.showHelp {
		t.Fatalf("expected help key ignored while dialog shown")
	}

	m.Update(runeKey('n'))
	select {
	case ok := <-reply:
		if ok {
			t.Fatalf("expected declined")
		}
	default:
		t.Fatalf("expected reply sent")
	}
	if m.dialog != nil {
		t.Fatalf("expected dialog closed")
	}
}

func TestModelQuitsOnAbortedConflict(t *testing.T) {
	t.Parallel()

	m := NewModel(Deps{Controller: &stubController{}})
	err := &pkgerrors.ConflictError{Kind: pkgerrors.ConflictForeign, PID: 100, Err: pkgerrors.ErrAborted}
	_, cmd := m.Update(transitionResultMsg{op: "reconcile", err: err})
	if !m.Aborted() {
		t.Fatalf("expected model marked aborted")
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestNodesTabRows(t *testing.T) {
	t.Parallel()

	nm := newNodesModel()
	nm.setSize(80, 10)
	nm.setNodes([]types.NodeView{
		{ServerNode: models.ServerNode{ID: 1, Name: "n1", Addr: "1.2.3.4", Port: 443, Password: "p"}, Using: true},
		{ServerNode: models.ServerNode{Port: 443}},
	})
	ms := 42
	nm.setLatencies(map[int64]*models.LatencyTest{1: {NodeID: 1, Success: true, LatencyMS: &ms}})

	rows := nm.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "n1" || rows[0][2] != "1.2.3.4:443" || rows[0][3] != "42ms" || rows[0][4] != "*" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[1][1] != "(empty)" || rows[1][2] != "-" || rows[1][4] != "" {
		t.Fatalf("unexpected placeholder row: %v", rows[1])
	}
	if got := nm.persisted(); len(got) != 1 || got[0].Name != "n1" {
		t.Fatalf("expected only n1 testable, got %+v", got)
	}
}

func TestSaveListenerSettingGoesThroughController(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{}
	msg := saveSetting(ctrl, nil, storage.SettingLocalPort, "2080")().(settingSavedMsg)
	if msg.err != nil {
		t.Fatalf("saveSetting() error: %v", msg.err)
	}
	if len(ctrl.settings) != 1 || ctrl.settings[0].LocalPort == nil || *ctrl.settings[0].LocalPort != 2080 {
		t.Fatalf("expected port 2080 sent to controller, got %+v", ctrl.settings)
	}

	msg = saveSetting(ctrl, nil, storage.SettingLocalPort, "abc")().(settingSavedMsg)
	if msg.err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}

func TestSettingsLockedWhileRunning(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{}
	root := NewModel(Deps{Controller: ctrl})
	sm := newSettingsModel()
	sm.setSettings(map[string]string{storage.SettingLogLevel: "info"})
	sm.setRunning(true)

	if cmd := sm.Update(tea.KeyMsg{Type: tea.KeyEnter}, root); cmd != nil || sm.editing {
		t.Fatalf("expected listen addr locked while running")
	}
	if !root.notificationErr {
		t.Fatalf("expected an error notification for a locked field")
	}

	sm.cursor = 3
	sm.Update(runeKey('l'), root)
	if sm.settings[storage.SettingLogLevel] != "info" || len(ctrl.settings) != 0 {
		t.Fatalf("expected log level unchanged while running, got %q", sm.settings[storage.SettingLogLevel])
	}

	sm.cursor = 4
	if sm.Update(tea.KeyMsg{Type: tea.KeyEnter}, root); !sm.editing {
		t.Fatalf("expected test workers editable while running")
	}
	sm.stopEditing()

	sm.setRunning(false)
	sm.cursor = 3
	cmd := sm.Update(runeKey('l'), root)
	if cmd == nil || sm.settings[storage.SettingLogLevel] != "warn" {
		t.Fatalf("expected log level cycled to warn, got %q", sm.settings[storage.SettingLogLevel])
	}
	if msg := cmd().(settingSavedMsg); msg.err != nil {
		t.Fatalf("saveSetting() error: %v", msg.err)
	}
	if len(ctrl.settings) != 1 || ctrl.settings[0].LogLevel == nil || *ctrl.settings[0].LogLevel != models.LogLevelWarn {
		t.Fatalf("expected warn sent to controller, got %+v", ctrl.settings)
	}
}

func TestSessionStartDropsListenerEdit(t *testing.T) {
	t.Parallel()

	root := NewModel(Deps{Controller: &stubController{}})
	sm := newSettingsModel()
	sm.cursor = 1
	sm.Update(tea.KeyMsg{Type: tea.KeyEnter}, root)
	if !sm.editing {
		t.Fatalf("expected listen port editable while idle")
	}

	sm.setRunning(true)
	if sm.editing {
		t.Fatalf("expected edit dropped once a session runs")
	}
}

func TestNodesTabRefusesDeletingRunningNode(t *testing.T) {
	t.Parallel()

	m := NewModel(Deps{Controller: &stubController{}})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	var cmds []tea.Cmd
	m.applyState(&types.State{
		Phase: types.PhaseRunning,
		Node:  "n1",
		Nodes: []types.NodeView{
			{ServerNode: models.ServerNode{ID: 1, Name: "n1", Addr: "1.2.3.4", Port: 443, Password: "p"}, Using: true},
		},
	}, &cmds)
	if !m.settingsTab.running {
		t.Fatalf("expected settings tab told about the running session")
	}

	m.busy = false
	m.Update(runeKey('x'))
	if m.busy {
		t.Fatalf("expected no delete transition for the running node")
	}
	if !m.notificationErr || !strings.Contains(m.notification, "n1") {
		t.Fatalf("expected notification naming n1, got %q", m.notification)
	}
}
