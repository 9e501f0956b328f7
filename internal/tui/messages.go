package tui

import (
	"time"

	"hunter/internal/core/types"
	"hunter/internal/latency"
	"hunter/internal/storage/models"
)

// Data loading messages.

type stateLoadedMsg struct {
	state *types.State
	err   error
}

type settingsLoadedMsg struct {
	settings map[string]string
	err      error
}

type latenciesLoadedMsg struct {
	latencies map[int64]*models.LatencyTest
}

// Transition messages.

type transitionStartedMsg struct {
	op string
}

type transitionResultMsg struct {
	op    string
	state *types.State
	err   error
}

type deleteResultMsg struct {
	name    string
	deleted bool
	err     error
}

// Status polling messages.

type statusTickMsg struct{}

type probeResultMsg struct {
	elapsed time.Duration
	err     error
}

// Latency testing messages.

type latencyTestProgressMsg struct {
	result  *latency.TestResult
	current int
	total   int
}

type latencyTestDoneMsg struct {
	batch *latency.BatchResult
}

type singleLatencyDoneMsg struct {
	result *latency.TestResult
}

// Settings update messages.

type settingSavedMsg struct {
	key string
	err error
}

// Confirmation requests from a running transition.

type confirmRequestMsg struct {
	prompt types.Prompt
	reply  chan bool
}

// Notification message.

type clearNotificationMsg struct {
	version int
}
