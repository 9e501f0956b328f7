package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hunter/internal/core/types"
)

type statusModel struct {
	width  int
	height int

	probing   bool
	probeAt   time.Time
	probeTook time.Duration
	probeErr  error
}

func newStatusModel() statusModel {
	return statusModel{}
}

func (sm *statusModel) setSize(w, h int) {
	sm.width = w
	sm.height = h
}

func (sm *statusModel) updateProbe(msg probeResultMsg) {
	sm.probing = false
	sm.probeAt = time.Now()
	sm.probeTook = msg.elapsed
	sm.probeErr = msg.err
}

func (sm *statusModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	return nil
}

func (sm *statusModel) View(st *types.State) string {
	w := sm.width - 6
	if w < 30 {
		w = 30
	}
	if st == nil {
		return forceHeight(cardStyle.Width(w).Render(dimStyle.Render("Loading...")), sm.width, sm.height)
	}

	rows := []string{cardTitleStyle.Render("Session")}
	if st.Phase == types.PhaseRunning {
		rows = append(rows,
			sm.row("Status", successStyle.Render("Running")),
			sm.row("Node", st.Node),
			sm.row("PID", fmt.Sprintf("%d", st.PID)),
		)
		for _, n := range st.Nodes {
			if n.Name == st.Node {
				rows = append(rows, sm.row("Server", n.Endpoint()))
				break
			}
		}
	} else {
		rows = append(rows, sm.row("Status", dimStyle.Render("Idle")))
	}

	proxy := errorStyle.Render("off")
	if st.ProxyEnabled {
		proxy = successStyle.Render("on (PAC)")
	}
	daemon := dimStyle.Render("off")
	if st.Daemon {
		daemon = cardValueStyle.Render("on")
	}
	rows = append(rows, sm.row("System proxy", proxy), sm.row("Daemon", daemon))

	if st.Conflict != nil {
		rows = append(rows, sm.row("Conflict", warningStyle.Render(st.Conflict.String())))
	}

	switch {
	case sm.probing:
		rows = append(rows, sm.row("Probe", "running..."))
	case !sm.probeAt.IsZero() && sm.probeErr != nil:
		rows = append(rows, sm.row("Probe", errorStyle.Render("failed")))
	case !sm.probeAt.IsZero():
		ms := int(sm.probeTook.Milliseconds())
		rows = append(rows, sm.row("Probe", latencyStyle(ms).Render(fmt.Sprintf("%dms", ms))+
			dimStyle.Render(" at "+sm.probeAt.Format("15:04:05"))))
	}

	card := cardStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return forceHeight(card, sm.width, sm.height)
}

func (sm *statusModel) row(label, value string) string {
	return cardLabelStyle.Render(label+":") + " " + cardValueStyle.Render(value)
}
