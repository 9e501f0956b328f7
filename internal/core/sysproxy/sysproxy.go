// Package sysproxy switches the operating system's automatic proxy
// configuration (PAC) on and off.
package sysproxy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its trimmed output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, out)
	}
	return out, nil
}

// backend is one way of driving a platform's proxy settings.
type backend interface {
	enabled(ctx context.Context) (bool, error)
	enable(ctx context.Context, pac string) error
	disable(ctx context.Context) error
}

// Toggle enables, disables and queries the system PAC setting.
// The state read back right after a write may lag behind it.
type Toggle struct {
	backend backend
	logger  *slog.Logger
}

// New returns the Toggle for the current platform.
func New(runner CommandRunner, logger *slog.Logger) *Toggle {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Toggle{backend: platformBackend(runner), logger: logger}
}

// Enabled reports whether the PAC setting is currently on.
func (t *Toggle) Enabled(ctx context.Context) (bool, error) {
	on, err := t.backend.enabled(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query system proxy: %w", err)
	}
	t.logger.Debug("system proxy state", "enabled", on)
	return on, nil
}

// Enable points the system proxy at pac.
func (t *Toggle) Enable(ctx context.Context, pac string) error {
	if err := t.backend.enable(ctx, pac); err != nil {
		return fmt.Errorf("failed to enable system proxy: %w", err)
	}
	t.logger.Info("system proxy enabled", "pac", pac)
	return nil
}

// Disable turns the PAC setting off.
func (t *Toggle) Disable(ctx context.Context) error {
	if err := t.backend.disable(ctx); err != nil {
		return fmt.Errorf("failed to disable system proxy: %w", err)
	}
	t.logger.Info("system proxy disabled")
	return nil
}
