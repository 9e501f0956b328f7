//go:build windows

package trojan

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	pkgerrors "hunter/pkg/errors"
)

func detach(cmd *exec.Cmd) {}

// Terminate kills pid.
func (r *Runner) Terminate(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: pid %d", pkgerrors.ErrProcessNotFound, pid)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	r.logger.Info("trojan-go terminated", "pid", pid)
	return nil
}
