package tui

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hunter/internal/core/types"
)

// confirmModel is a modal yes/no dialog.
type confirmModel struct {
	prompt   types.Prompt
	answered bool
	ok       bool
}

func newConfirmModel(p types.Prompt) confirmModel {
	if p.OK == "" {
		p.OK = "OK"
	}
	if p.Cancel == "" {
		p.Cancel = "Cancel"
	}
	return confirmModel{prompt: p}
}

// Update records an answer on y/enter or n/esc and ignores everything else.
func (cm *confirmModel) Update(msg tea.Msg) {
	k, ok := msg.(tea.KeyMsg)
	if !ok || cm.answered {
		return
	}
	switch {
	case key.Matches(k, keys.Confirm):
		cm.answered, cm.ok = true, true
	case key.Matches(k, keys.Decline):
		cm.answered, cm.ok = true, false
	}
}

func (cm *confirmModel) View(width int) string {
	w := width - 10
	if w < 30 {
		w = 30
	}
	if w > 72 {
		w = 72
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		dialogOKStyle.Render("y "+cm.prompt.OK),
		"  ",
		dialogCancelStyle.Render("n "+cm.prompt.Cancel),
	)
	body := lipgloss.JoinVertical(lipgloss.Left,
		dialogTitleStyle.Render(cm.prompt.Title),
		lipgloss.NewStyle().Width(w-6).Render(cm.prompt.Message),
		"",
		buttons,
	)
	return dialogStyle.Width(w).Render(body)
}

// sender delivers messages into a running program.
type sender interface {
	Send(msg tea.Msg)
}

// programPrompter forwards confirmations from background transitions to the
// dashboard and blocks until the user answers.
type programPrompter struct {
	program sender
}

func (p *programPrompter) Confirm(ctx context.Context, prompt types.Prompt) (bool, error) {
	reply := make(chan bool, 1)
	p.program.Send(confirmRequestMsg{prompt: prompt, reply: reply})
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// standaloneConfirm runs a confirmModel as its own program.
type standaloneConfirm struct {
	dialog confirmModel
	width  int
}

func (m *standaloneConfirm) Init() tea.Cmd { return nil }

func (m *standaloneConfirm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = ws.Width
		return m, nil
	}
	m.dialog.Update(msg)
	if m.dialog.answered {
		return m, tea.Quit
	}
	return m, nil
}

func (m *standaloneConfirm) View() string {
	if m.dialog.answered {
		return ""
	}
	return m.dialog.View(m.width) + "\n"
}

// Prompter asks for confirmation with a one-off dialog on a terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer
}

// NewPrompter returns a Prompter on stdin and stderr.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

func (p *Prompter) Confirm(ctx context.Context, prompt types.Prompt) (bool, error) {
	m := &standaloneConfirm{dialog: newConfirmModel(prompt), width: 80}
	final, err := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	).Run()
	if err != nil {
		return false, err
	}
	return final.(*standaloneConfirm).dialog.ok, nil
}
