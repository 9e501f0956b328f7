package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hunter/internal/core/types"
	"hunter/internal/storage/models"
)

type nodesModel struct {
	table     table.Model
	nodes     []types.NodeView
	latencies map[int64]*models.LatencyTest
	width     int
	height    int

	// Testing state.
	testingSingle bool
	testingBatch  bool
	batchProgress progress.Model
	batchCurrent  int
	batchTotal    int
}

func nodeColumns(w int) []table.Column {
	if w > 100 {
		return []table.Column{
			{Title: "#", Width: 4},
			{Title: "Name", Width: w/3 - 4},
			{Title: "Address", Width: w/3 - 2},
			{Title: "Latency", Width: 10},
			{Title: "Using", Width: 7},
		}
	}
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "Name", Width: 25},
		{Title: "Address", Width: 28},
		{Title: "Latency", Width: 10},
		{Title: "Using", Width: 7},
	}
}

func newNodesModel() nodesModel {
	t := table.New(
		table.WithColumns(nodeColumns(0)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorLine).
		BorderBottom(true).
		Bold(true).
		Foreground(colorAccent)
	s.Selected = s.Selected.
		Foreground(colorFg).
		Background(colorRowBg).
		Bold(true)
	t.SetStyles(s)

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithoutPercentage(),
	)

	return nodesModel{
		table:         t,
		batchProgress: p,
		latencies:     map[int64]*models.LatencyTest{},
	}
}

func (nm *nodesModel) setSize(w, h int) {
	nm.width = w
	nm.height = h
	nm.adjustTableHeight()
	nm.table.SetColumns(nodeColumns(w))
	nm.batchProgress.Width = w - 4
}

// adjustTableHeight leaves room for the testing indicator line.
func (nm *nodesModel) adjustTableHeight() {
	overhead := 0
	if nm.testingSingle || nm.testingBatch {
		overhead++
	}
	th := nm.height - overhead
	if th < 1 {
		th = 1
	}
	nm.table.SetHeight(th)
}

func (nm *nodesModel) setNodes(nodes []types.NodeView) {
	nm.nodes = nodes
	nm.refreshRows()
}

func (nm *nodesModel) setLatencies(l map[int64]*models.LatencyTest) {
	nm.latencies = l
	nm.refreshRows()
}

func (nm *nodesModel) refreshRows() {
	rows := make([]table.Row, len(nm.nodes))
	for i, n := range nm.nodes {
		latStr := "-"
		if lat := nm.latencies[n.ID]; lat != nil {
			if lat.Success && lat.LatencyMS != nil {
				latStr = fmt.Sprintf("%dms", *lat.LatencyMS)
			} else if !lat.Success {
				latStr = "fail"
			}
		}

		name := n.Name
		if name == "" {
			name = "(empty)"
		}
		addr := "-"
		if n.Addr != "" {
			addr = n.Endpoint()
		}
		using := ""
		if n.Using {
			using = "*"
		}

		rows[i] = table.Row{
			fmt.Sprintf("%d", i),
			truncate(name, 30),
			truncate(addr, 40),
			latStr,
			using,
		}
	}
	cursor := nm.table.Cursor()
	nm.table.SetRows(rows)
	if cursor >= len(rows) {
		nm.table.GotoBottom()
	}
}

// selected returns the node under the cursor and its index.
func (nm *nodesModel) selected() (*types.NodeView, int) {
	idx := nm.table.Cursor()
	if idx >= 0 && idx < len(nm.nodes) {
		return &nm.nodes[idx], idx
	}
	return nil, -1
}

func (nm *nodesModel) persisted() []*models.ServerNode {
	var out []*models.ServerNode
	for i := range nm.nodes {
		if nm.nodes[i].ID != 0 && nm.nodes[i].Addr != "" {
			n := nm.nodes[i].ServerNode
			out = append(out, &n)
		}
	}
	return out
}

func (nm *nodesModel) updateProgress(msg latencyTestProgressMsg) {
	nm.batchCurrent = msg.current
	nm.batchTotal = msg.total
}

func (nm *nodesModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter):
			node, _ := nm.selected()
			if node == nil || root.busy {
				return nil
			}
			if node.Using {
				root.busy = true
				return disableSession(root.ctrl, root.prompter)
			}
			if !node.IsComplete() {
				root.setNotification(fmt.Sprintf("Node %q is incomplete", node.Name), true)
				return nil
			}
			root.busy = true
			running := root.state != nil && root.state.Phase == types.PhaseRunning
			return enableNode(root.ctrl, root.prompter, node.Name, running)

		case key.Matches(msg, keys.Delete):
			node, idx := nm.selected()
			if node == nil || root.busy {
				return nil
			}
			if node.Using {
				root.setNotification(fmt.Sprintf("Node %q is running, disable it first", node.Name), true)
				return nil
			}
			root.busy = true
			return deleteNode(root.ctrl, root.prompter, idx, node.Name)

		case key.Matches(msg, keys.TestOne):
			node, _ := nm.selected()
			if node != nil && node.ID != 0 && !nm.testingSingle && !nm.testingBatch {
				nm.testingSingle = true
				nm.adjustTableHeight()
				n := node.ServerNode
				return testSingleLatency(root.store, &n, root.latencyConfig())
			}

		case key.Matches(msg, keys.TestAll):
			nodes := nm.persisted()
			if len(nodes) > 0 && !nm.testingBatch && !nm.testingSingle {
				nm.testingBatch = true
				nm.batchCurrent = 0
				nm.batchTotal = len(nodes)
				nm.adjustTableHeight()
				return testBatchLatency(root.store, nodes, root.program, root.latencyConfig())
			}
		}
	}

	var cmd tea.Cmd
	nm.table, cmd = nm.table.Update(msg)
	return cmd
}

func (nm *nodesModel) View(s spinner.Model) string {
	var b strings.Builder

	if nm.testingSingle {
		b.WriteString(s.View() + " Testing latency...\n")
	} else if nm.testingBatch {
		pct := 0.0
		if nm.batchTotal > 0 {
			pct = float64(nm.batchCurrent) / float64(nm.batchTotal)
		}
		b.WriteString(fmt.Sprintf("%s Testing %d/%d ", s.View(), nm.batchCurrent, nm.batchTotal))
		b.WriteString(nm.batchProgress.ViewAs(pct))
		b.WriteString("\n")
	}

	if len(nm.nodes) == 0 {
		b.WriteString(dimStyle.Render("No nodes. Add one with: hunter node add <name> <addr> <password>"))
	} else {
		b.WriteString(nm.table.View())
	}

	return forceHeight(b.String(), nm.width, nm.height)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "~"
}
