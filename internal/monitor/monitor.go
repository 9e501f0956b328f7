package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"hunter/internal/core/types"
)

// StateSource yields a fresh session snapshot.
type StateSource interface {
	State(ctx context.Context) (*types.State, error)
}

// ChangeFunc is called when the observed session changes. prev is nil on the
// first poll.
type ChangeFunc func(prev, next *types.State)

// Monitor polls the session on an interval and reports changes, such as the
// trojan-go process dying or the system proxy being flipped outside hunter.
type Monitor struct {
	scheduler gocron.Scheduler
	source    StateSource
	interval  time.Duration
	onChange  ChangeFunc
	logger    *slog.Logger

	mu      sync.Mutex
	last    *types.State
	running bool
}

// New creates a Monitor polling source every interval.
func New(source StateSource, interval time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Monitor, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Monitor{
		scheduler: scheduler,
		source:    source,
		interval:  interval,
		onChange:  onChange,
		logger:    logger,
	}, nil
}

// Start schedules the poll job and runs one poll immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor is already running")
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			m.Poll(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll job: %w", err)
	}

	m.scheduler.Start()
	m.running = true

	go m.Poll(ctx)

	return nil
}

// Stop shuts the scheduler down.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("monitor is not running")
	}

	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	m.running = false
	return nil
}

// Poll takes one snapshot and reports it if it differs from the last one.
func (m *Monitor) Poll(ctx context.Context) {
	st, err := m.source.State(ctx)
	if err != nil {
		m.logger.Warn("state poll failed", "error", err)
		return
	}

	m.mu.Lock()
	prev := m.last
	m.last = st
	m.mu.Unlock()

	if prev != nil && Summary(prev) == Summary(st) {
		return
	}
	m.logger.Info("session state", "state", Summary(st))
	if st.Conflict != nil {
		m.logger.Warn("conflicting trojan-go process", "process", st.Conflict.String())
	}
	if m.onChange != nil {
		m.onChange(prev, st)
	}
}

// Last returns the most recent snapshot, or nil before the first poll.
func (m *Monitor) Last() *types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Summary renders the parts of a state worth reporting as one line.
func Summary(st *types.State) string {
	if st == nil {
		return "unknown"
	}
	proxy := "off"
	if st.ProxyEnabled {
		proxy = "on"
	}
	s := string(st.Phase)
	if st.Phase == types.PhaseRunning {
		s = fmt.Sprintf("running %s (pid %d)", st.Node, st.PID)
	}
	s += ", proxy " + proxy
	if st.Daemon {
		s += ", daemon"
	}
	if st.Conflict != nil {
		s += ", conflict " + st.Conflict.String()
	}
	return s
}
