package trojan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"hunter/internal/paths"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// BinaryName is the executable name trojan-go runs under.
func BinaryName() string {
	if runtime.GOOS == "windows" {
		return "trojan-go.exe"
	}
	return "trojan-go"
}

// Options configures a Runner.
type Options struct {
	// Binary is an explicit trojan-go path. Empty means search common locations.
	Binary string
	// Dir holds the client config and log files. Empty means paths.ConfigDir().
	Dir string
	// StartupGrace is how long Start waits for an early exit.
	StartupGrace time.Duration
	// StopTimeout is how long Terminate waits before killing.
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Runner spawns and terminates trojan-go processes.
type Runner struct {
	binary      string
	dir         string
	grace       time.Duration
	stopTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
}

// NewRunner creates a Runner. The binary is resolved lazily on Start.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Dir == "" {
		dir, err := paths.ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		opts.Dir = dir
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		binary:      opts.Binary,
		dir:         opts.Dir,
		grace:       opts.StartupGrace,
		stopTimeout: opts.StopTimeout,
		logger:      opts.Logger,
	}, nil
}

// ConfigPath is the client config path passed to trojan-go via -config.
func (r *Runner) ConfigPath() string {
	return filepath.Join(r.dir, paths.TrojanConfigFile)
}

// ErrorLogPath is where trojan-go stderr goes.
func (r *Runner) ErrorLogPath() string {
	return filepath.Join(r.dir, paths.ErrorLogFile)
}

// OutLogPath is where trojan-go stdout goes.
func (r *Runner) OutLogPath() string {
	return filepath.Join(r.dir, paths.OutLogFile)
}

// Start writes the client config for node and spawns trojan-go detached from
// this process, so the proxy survives when hunter exits. It returns the pid.
func (r *Runner) Start(ctx context.Context, node *models.ServerNode, cfg *models.Configuration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bin, err := FindBinary(r.binary)
	if err != nil {
		return 0, err
	}

	if err := WriteConfig(r.ConfigPath(), NewClientConfig(node, cfg)); err != nil {
		return 0, err
	}

	outLog, err := os.Create(r.OutLogPath())
	if err != nil {
		return 0, fmt.Errorf("failed to create log file: %w", err)
	}
	paths.ChownToRealUser(r.OutLogPath())
	errLog, err := os.Create(r.ErrorLogPath())
	if err != nil {
		outLog.Close()
		return 0, fmt.Errorf("failed to create log file: %w", err)
	}
	paths.ChownToRealUser(r.ErrorLogPath())

	// exec.Command, not CommandContext: the process must outlive ctx.
	cmd := exec.Command(bin, "-config", r.ConfigPath())
	cmd.Dir = r.dir
	cmd.Stdout = outLog
	cmd.Stderr = errLog
	detach(cmd)

	if err := cmd.Start(); err != nil {
		outLog.Close()
		errLog.Close()
		return 0, fmt.Errorf("%w: %v", pkgerrors.ErrStartFailed, err)
	}
	pid := cmd.Process.Pid

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		outLog.Close()
		errLog.Close()
		close(exited)
	}()

	// Config errors make trojan-go exit right away.
	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case <-exited:
		logContent, _ := os.ReadFile(r.ErrorLogPath())
		if msg := strings.TrimSpace(string(logContent)); msg != "" {
			return 0, fmt.Errorf("%w:\n%s", pkgerrors.ErrStartFailed, msg)
		}
		return 0, fmt.Errorf("%w, check logs at: %s", pkgerrors.ErrStartFailed, r.ErrorLogPath())
	case <-ctx.Done():
		return pid, ctx.Err()
	case <-timer.C:
	}

	r.logger.Info("trojan-go started", "pid", pid, "node", node.Name, "config", r.ConfigPath())
	return pid, nil
}

// FindBinary resolves the trojan-go executable. An explicit path wins;
// otherwise common locations are searched.
func FindBinary(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: %s", pkgerrors.ErrBinaryNotFound, explicit)
		}
		return path, nil
	}

	name := BinaryName()
	locations := []string{name}
	if cacheDir, err := paths.CacheDir(); err == nil {
		locations = append(locations, filepath.Join(cacheDir, name))
	}
	if homeDir, err := paths.HomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".local", "bin", name))
	}
	locations = append(locations,
		"/usr/local/bin/"+name,
		"/usr/bin/"+name,
		"/opt/trojan-go/"+name,
	)

	for _, loc := range locations {
		path, err := exec.LookPath(loc)
		if err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (install from https://github.com/p4gefau1t/trojan-go)", pkgerrors.ErrBinaryNotFound)
}
