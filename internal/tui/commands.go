package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/latency"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
)

// transitionContext routes confirmations raised by a transition into the
// dashboard's dialog.
func transitionContext(p types.Prompter) context.Context {
	ctx := context.Background()
	if p != nil {
		ctx = core.WithPrompter(ctx, p)
	}
	return ctx
}

// loadState refreshes the composite session state.
func loadState(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.State(context.Background())
		return stateLoadedMsg{state: st, err: err}
	}
}

// reconcile resolves a conflicting process on startup.
func reconcile(ctrl Controller, p types.Prompter) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.Reconcile(transitionContext(p))
		return transitionResultMsg{op: "reconcile", state: st, err: err}
	}
}

// loadSettings fetches all application settings.
func loadSettings(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		settings, err := store.GetAllSettings(context.Background())
		return settingsLoadedMsg{settings: settings, err: err}
	}
}

// loadLatencies fetches the latest latency result of every persisted node.
func loadLatencies(store storage.Storage, nodes []types.NodeView) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		out := make(map[int64]*models.LatencyTest, len(nodes))
		for _, n := range nodes {
			if n.ID == 0 {
				continue
			}
			if lat, err := store.GetLatestLatency(ctx, n.ID); err == nil && lat != nil {
				out[n.ID] = lat
			}
		}
		return latenciesLoadedMsg{latencies: out}
	}
}

// enableNode enables name, or switches to it when another node runs.
func enableNode(ctrl Controller, p types.Prompter, name string, switching bool) tea.Cmd {
	return func() tea.Msg {
		ctx := transitionContext(p)
		if switching {
			st, err := ctrl.Switch(ctx, name)
			return transitionResultMsg{op: "switch to " + name, state: st, err: err}
		}
		st, err := ctrl.Enable(ctx, name)
		return transitionResultMsg{op: "enable " + name, state: st, err: err}
	}
}

// disableSession stops the running session.
func disableSession(ctrl Controller, p types.Prompter) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.Disable(transitionContext(p))
		return transitionResultMsg{op: "disable", state: st, err: err}
	}
}

// deleteNode removes the node at index, asking first when it is complete.
func deleteNode(ctrl Controller, p types.Prompter, index int, name string) tea.Cmd {
	return func() tea.Msg {
		deleted, err := ctrl.Delete(transitionContext(p), index)
		return deleteResultMsg{name: name, deleted: deleted, err: err}
	}
}

// setSystemProxy flips the OS proxy.
func setSystemProxy(ctrl Controller, p types.Prompter, on bool) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.SetSystemProxy(transitionContext(p), on)
		return transitionResultMsg{op: fmt.Sprintf("system proxy %s", onOff(on)), state: st, err: err}
	}
}

// setDaemon flips the daemon preference.
func setDaemon(ctrl Controller, p types.Prompter, on bool) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.SetDaemon(transitionContext(p), on)
		return transitionResultMsg{op: fmt.Sprintf("daemon %s", onOff(on)), state: st, err: err}
	}
}

// runProbe checks connectivity through the local listener.
func runProbe(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		elapsed, err := ctrl.Probe(context.Background())
		return probeResultMsg{elapsed: elapsed, err: err}
	}
}

// statusTick returns a tea.Cmd that fires after 2 seconds.
func statusTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

// testSingleLatency tests a single node.
func testSingleLatency(store storage.Storage, node *models.ServerNode, cfg latency.TesterConfig) tea.Cmd {
	return func() tea.Msg {
		cfg.Workers = 1
		tester := latency.NewTester(store, cfg)
		result := tester.TestSingle(context.Background(), node)
		return singleLatencyDoneMsg{result: result}
	}
}

// testBatchLatency tests multiple nodes with progress reporting via program.Send.
func testBatchLatency(store storage.Storage, nodes []*models.ServerNode, p sender, cfg latency.TesterConfig) tea.Cmd {
	return func() tea.Msg {
		tester := latency.NewTester(store, cfg)

		progress := func(result *latency.TestResult, current, total int) {
			if p != nil {
				p.Send(latencyTestProgressMsg{result: result, current: current, total: total})
			}
		}

		batch := tester.TestBatch(context.Background(), nodes, progress)
		return latencyTestDoneMsg{batch: batch}
	}
}

// saveSetting saves a single setting. Listener settings go through the
// controller, which refuses them while a session runs.
func saveSetting(ctrl Controller, store storage.Storage, key, value string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var s core.Settings
		switch key {
		case storage.SettingLocalAddr:
			s.LocalAddr = &value
		case storage.SettingLocalPort:
			port, err := strconv.Atoi(value)
			if err != nil {
				return settingSavedMsg{key: key, err: fmt.Errorf("invalid port %q", value)}
			}
			s.LocalPort = &port
		case storage.SettingPAC:
			s.PAC = &value
		case storage.SettingLogLevel:
			level, err := models.ParseLogLevel(value)
			if err != nil {
				return settingSavedMsg{key: key, err: err}
			}
			s.LogLevel = &level
		default:
			return settingSavedMsg{key: key, err: store.SetSetting(ctx, key, value)}
		}
		return settingSavedMsg{key: key, err: ctrl.UpdateSettings(ctx, s)}
	}
}

// clearNotification returns a command that fires after a delay.
func clearNotification(d time.Duration, version int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNotificationMsg{version: version}
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
