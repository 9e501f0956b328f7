//go:build !windows

package trojan

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"hunter/internal/paths"
	pkgerrors "hunter/pkg/errors"
)

// detach puts trojan-go in its own process group so it survives hunter
// exiting. Under sudo it drops back to the invoking user, which lets a later
// non-root hunter signal it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	if uid, gid, ok := paths.RealUser(); ok {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(uid),
			Gid: uint32(gid),
		}
	}
}

// Terminate sends SIGTERM to pid and escalates to SIGKILL if the process is
// still alive after the stop timeout.
func (r *Runner) Terminate(ctx context.Context, pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("%w: pid %d", pkgerrors.ErrProcessNotFound, pid)
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}

	deadline := time.NewTimer(r.stopTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !alive(pid) {
				r.logger.Info("trojan-go terminated", "pid", pid)
				return nil
			}
		case <-deadline.C:
			if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				return fmt.Errorf("failed to kill pid %d: %w", pid, err)
			}
			r.logger.Warn("trojan-go killed after stop timeout", "pid", pid)
			return nil
		}
	}
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
