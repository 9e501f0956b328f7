// Package conflict resolves trojan-go processes hunter cannot reason about.
package conflict

import (
	"context"
	"fmt"
	"log/slog"

	"hunter/internal/core/types"
)

// Action is the outcome of a resolution
type Action string

const (
	Terminated Action = "terminated" // the process was killed; treat the system as idle
	Aborted    Action = "aborted"    // the user refused; hunter must exit
)

// Terminator kills a process by pid.
type Terminator interface {
	Terminate(ctx context.Context, pid int) error
}

// Resolver asks the user whether a foreign or invalid process may be killed.
type Resolver struct {
	prompter   types.Prompter
	terminator Terminator
	logger     *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(prompter types.Prompter, terminator Terminator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{prompter: prompter, terminator: terminator, logger: logger}
}

// PromptFor builds the question shown for state.
func PromptFor(state *types.ProcessState) types.Prompt {
	var msg string
	switch state.Kind {
	case types.ProcessForeign:
		msg = fmt.Sprintf("A trojan-go process (PID %d) is running that was not started by hunter. "+
			"Terminate it, or quit hunter?", state.PID)
	default:
		msg = fmt.Sprintf("A trojan-go process (PID %d) was started by hunter but no longer matches "+
			"a configured node. Terminate it, or quit hunter?", state.PID)
	}
	return types.Prompt{
		Title:   "Process conflict",
		Message: msg,
		OK:      "Terminate process",
		Cancel:  "Quit hunter",
	}
}

// Resolve presents state to the user. Confirming terminates the process and
// returns Terminated; declining returns Aborted without touching it.
func (r *Resolver) Resolve(ctx context.Context, state *types.ProcessState) (Action, error) {
	if !state.IsConflict() {
		return "", fmt.Errorf("no conflict to resolve: %s", state)
	}

	ok, err := r.prompter.Confirm(ctx, PromptFor(state))
	if err != nil {
		return "", fmt.Errorf("failed to confirm: %w", err)
	}
	if !ok {
		r.logger.Warn("user kept unmanaged trojan-go process", "kind", state.Kind, "pid", state.PID)
		return Aborted, nil
	}

	if err := r.terminator.Terminate(ctx, state.PID); err != nil {
		return "", fmt.Errorf("failed to terminate %s: %w", state, err)
	}
	r.logger.Info("terminated unmanaged trojan-go process", "kind", state.Kind, "pid", state.PID)
	return Terminated, nil
}
