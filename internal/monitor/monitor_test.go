package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grokify/mogo/log/slogutil"
	"hunter/internal/core/types"
)

type scriptedSource struct {
	mu     sync.Mutex
	states []*types.State
	err    error
}

func (s *scriptedSource) State(ctx context.Context) (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	st := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return st, nil
}

func running(name string, pid int) *types.State {
	return &types.State{Phase: types.PhaseRunning, Node: name, PID: pid, ProxyEnabled: true, Daemon: true}
}

func TestPollReportsOnlyChanges(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{states: []*types.State{
		running("n1", 10),
		running("n1", 10),
		{Phase: types.PhaseIdle, Daemon: true},
	}}

	var changes []string
	m, err := New(src, time.Hour, func(prev, next *types.State) {
		changes = append(changes, Summary(prev)+" -> "+Summary(next))
	}, slogutil.Null())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	m.Poll(ctx)
	m.Poll(ctx)
	m.Poll(ctx)

	want := []string{
		"unknown -> running n1 (pid 10), proxy on, daemon",
		"running n1 (pid 10), proxy on, daemon -> idle, proxy off, daemon",
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %v", len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change %d = %q, want %q", i, changes[i], want[i])
		}
	}
	if m.Last().Phase != types.PhaseIdle {
		t.Fatalf("expected last state idle, got %+v", m.Last())
	}
}

func TestPollKeepsLastOnError(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{states: []*types.State{running("n1", 10)}}
	m, err := New(src, time.Hour, nil, slogutil.Null())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	m.Poll(context.Background())
	src.err = errors.New("inspect failed")
	m.Poll(context.Background())

	if m.Last() == nil || m.Last().Node != "n1" {
		t.Fatalf("expected last good state kept, got %+v", m.Last())
	}
}

func TestSummaryConflict(t *testing.T) {
	t.Parallel()

	st := &types.State{Phase: types.PhaseIdle, Conflict: types.Foreign(100)}
	if got, want := Summary(st), "idle, proxy off, conflict foreign(pid 100)"; got != want {
		t.Fatalf("Summary() = %q, want %q", got, want)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{states: []*types.State{running("n1", 10)}}
	seen := make(chan struct{}, 1)
	m, err := New(src, 50*time.Millisecond, func(prev, next *types.State) {
		select {
		case seen <- struct{}{}:
		default:
		}
	}, slogutil.Null())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start() to fail")
	}

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatalf("no state reported")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := m.Stop(); err == nil {
		t.Fatalf("expected second Stop() to fail")
	}
}
