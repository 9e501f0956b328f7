package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"hunter/internal/core/conflict"
	"hunter/internal/core/types"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// RetryPolicy bounds retries of OS-level terminate and proxy toggle calls.
type RetryPolicy struct {
	Retries int
	Backoff time.Duration
}

// DefaultRetryPolicy retries twice with a short backoff.
var DefaultRetryPolicy = RetryPolicy{Retries: 2, Backoff: 200 * time.Millisecond}

// Deps wires a Controller to its collaborators.
type Deps struct {
	Inspector  Inspector
	Spawner    Spawner
	Terminator Terminator
	Store      ConfigStore
	Daemon     DaemonFlag
	Proxy      SystemProxy
	Prober     Prober
	Prompter   types.Prompter
	Recorder   Recorder
	Logger     *slog.Logger
	Retry      *RetryPolicy
}

// Controller drives the trojan-go session. It owns the only path by which
// the using marker, the process, the system proxy and the daemon flag change,
// and runs at most one transition at a time.
type Controller struct {
	mu sync.Mutex

	inspector  Inspector
	spawner    Spawner
	terminator Terminator
	store      ConfigStore
	daemon     DaemonFlag
	proxy      SystemProxy
	prober     Prober
	prompter   types.Prompter
	recorder   Recorder
	logger     *slog.Logger
	retry      RetryPolicy

	// proxyEnabled is the optimistic local view of the system proxy flag.
	// Transitions set it right after issuing a toggle and never read the
	// OS flag back; State refreshes it.
	proxyEnabled bool
}

// NewController creates a Controller.
func NewController(d Deps) *Controller {
	c := &Controller{
		inspector:  d.Inspector,
		spawner:    d.Spawner,
		terminator: d.Terminator,
		store:      d.Store,
		daemon:     d.Daemon,
		proxy:      d.Proxy,
		prober:     d.Prober,
		prompter:   d.Prompter,
		recorder:   d.Recorder,
		logger:     d.Logger,
		retry:      DefaultRetryPolicy,
	}
	if d.Retry != nil {
		c.retry = *d.Retry
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// transition carries per-call bookkeeping.
type transition struct {
	op     string
	logger *slog.Logger
}

func (c *Controller) begin(op string, attrs ...any) *transition {
	logger := c.logger.With(append([]any{"transition", uuid.NewString(), "op", op}, attrs...)...)
	logger.Debug("transition started")
	return &transition{op: op, logger: logger}
}

func (t *transition) fail(step string, err error) error {
	var conflictErr *pkgerrors.ConflictError
	if errors.As(err, &conflictErr) {
		return err
	}
	t.logger.Error("transition failed", "step", step, "error", err)
	return &pkgerrors.TransitionError{Op: t.op, Step: step, Err: err}
}

func (c *Controller) finish(ctx context.Context, t *transition, err error) {
	if c.recorder != nil {
		c.recorder.RecordTransition(ctx, t.op, err)
	}
	if err == nil {
		t.logger.Info("transition done")
	}
}

func (c *Controller) prompterFor(ctx context.Context) types.Prompter {
	if p, ok := ctx.Value(prompterKey{}).(types.Prompter); ok && p != nil {
		return p
	}
	return c.prompter
}

// withRetry runs fn up to 1+Retries times.
func (c *Controller) withRetry(ctx context.Context, t *transition, step string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.retry.Retries; attempt++ {
		if attempt > 0 {
			t.logger.Warn("retrying", "step", step, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.Backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, pkgerrors.ErrProcessNotFound) {
			return err
		}
	}
	return err
}

// resolve inspects the process and runs conflict resolution on a foreign or
// invalid process. After a successful resolution there is no process.
func (c *Controller) resolve(ctx context.Context, t *transition) (*types.ProcessState, error) {
	state, err := c.inspector.Inspect(ctx)
	if err != nil {
		return nil, t.fail("inspect process", err)
	}
	if !state.IsConflict() {
		return state, nil
	}

	resolver := conflict.NewResolver(c.prompterFor(ctx), c.terminator, t.logger)
	action, err := resolver.Resolve(ctx, state)
	if err != nil {
		return nil, t.fail("resolve conflict", err)
	}
	if action == conflict.Aborted {
		return nil, &pkgerrors.ConflictError{Kind: string(state.Kind), PID: state.PID, Err: pkgerrors.ErrAborted}
	}
	return nil, nil
}

// Enable makes name the running node. Any other node marked using is demoted
// first. If name already runs, only the system proxy is switched on when it
// is off. Otherwise the marker is persisted, trojan-go is (re)started, the
// daemon flag is forced on and the system proxy is switched on if it is off.
func (c *Controller) Enable(ctx context.Context, name string) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("enable", "node", name)
	defer func() { c.finish(ctx, t, err) }()
	return c.enable(ctx, t, name)
}

// Switch moves the session to name. The previous node is demoted and its
// process replaced; the system proxy is not torn down in between.
func (c *Controller) Switch(ctx context.Context, name string) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("switch", "node", name)
	defer func() { c.finish(ctx, t, err) }()
	return c.enable(ctx, t, name)
}

func (c *Controller) enable(ctx context.Context, t *transition, name string) (*types.State, error) {
	cfg, err := c.store.GetConfiguration(ctx)
	if err != nil {
		return nil, t.fail("read configuration", err)
	}
	node := cfg.NodeByName(name)
	if node == nil {
		return nil, t.fail("find node", &pkgerrors.NodeError{Index: -1, Name: name, Err: pkgerrors.ErrNodeNotFound})
	}
	if !node.IsComplete() {
		return nil, t.fail("find node", &pkgerrors.NodeError{Index: -1, Name: name, Err: pkgerrors.ErrNodeIncomplete})
	}

	proc, err := c.resolve(ctx, t)
	if err != nil {
		return nil, err
	}

	marker, err := c.store.GetUsingNode(ctx)
	if err != nil {
		return nil, t.fail("read using node", err)
	}
	if marker != "" && marker != name {
		if err := c.store.ClearUsingNode(ctx); err != nil {
			return nil, t.fail("demote "+marker, err)
		}
		t.logger.Info("demoted node", "previous", marker)
		marker = ""
	}

	if proc.ManagedName() == name {
		if marker != name {
			if err := c.store.SetUsingNode(ctx, name); err != nil {
				return nil, t.fail("persist using node", err)
			}
		}
		if err := c.ensureProxyOn(ctx, t, cfg.PAC); err != nil {
			return nil, err
		}
		return c.compose(ctx, proc)
	}

	if err := c.store.SetUsingNode(ctx, name); err != nil {
		return nil, t.fail("persist using node", err)
	}

	if proc.IsManaged() {
		err := c.withRetry(ctx, t, "terminate previous process", func() error {
			return c.terminator.Terminate(ctx, proc.PID)
		})
		if err != nil {
			return nil, t.fail("terminate previous process", err)
		}
	}

	pid, err := c.spawner.Start(ctx, node, cfg)
	if err != nil {
		return nil, t.fail("start trojan-go", err)
	}
	t.logger.Info("trojan-go running", "pid", pid)

	if err := c.daemon.SetDaemonFlag(ctx, true); err != nil {
		return nil, t.fail("enable daemon", err)
	}

	if err := c.ensureProxyOn(ctx, t, cfg.PAC); err != nil {
		return nil, err
	}

	return c.compose(ctx, types.Managed(pid, node))
}

// ensureProxyOn enables the system proxy only when the OS reports it off,
// then trusts the local view without reading the flag back.
func (c *Controller) ensureProxyOn(ctx context.Context, t *transition, pac string) error {
	on, err := c.proxy.Enabled(ctx)
	if err != nil {
		return t.fail("query system proxy", err)
	}
	if !on {
		err := c.withRetry(ctx, t, "enable system proxy", func() error {
			return c.proxy.Enable(ctx, pac)
		})
		if err != nil {
			return t.fail("enable system proxy", err)
		}
	}
	c.proxyEnabled = true
	return nil
}

// Disable ends the session: system proxy off, then the managed process is
// terminated, then the daemon flag and using marker are cleared and the
// views refreshed. Nothing is rolled back when a step fails.
func (c *Controller) Disable(ctx context.Context) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("disable")
	defer func() { c.finish(ctx, t, err) }()

	proc, err := c.resolve(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := c.withRetry(ctx, t, "disable system proxy", func() error { return c.proxy.Disable(ctx) }); err != nil {
		return nil, t.fail("disable system proxy", err)
	}
	c.proxyEnabled = false

	if proc.IsManaged() {
		err := c.withRetry(ctx, t, "terminate trojan-go", func() error {
			return c.terminator.Terminate(ctx, proc.PID)
		})
		if err != nil {
			return nil, t.fail("terminate trojan-go", err)
		}
	}

	if err := c.daemon.SetDaemonFlag(ctx, false); err != nil {
		return nil, t.fail("clear daemon", err)
	}
	if err := c.store.ClearUsingNode(ctx); err != nil {
		return nil, t.fail("clear using node", err)
	}

	fresh, err := c.inspector.Inspect(ctx)
	if err != nil {
		return nil, t.fail("refresh process state", err)
	}
	return c.compose(ctx, fresh)
}

// Delete removes the node at index. The node of the running process cannot
// be deleted. A complete node needs confirmation naming it; declining leaves
// everything unchanged and reports false.
func (c *Controller) Delete(ctx context.Context, index int) (deleted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("delete", "index", index)
	defer func() { c.finish(ctx, t, err) }()

	nodes, err := c.store.GetNodes(ctx)
	if err != nil {
		return false, t.fail("read nodes", err)
	}
	if index < 0 || index >= len(nodes) {
		return false, t.fail("find node", &pkgerrors.NodeError{Index: index, Err: pkgerrors.ErrIndexOutOfRange})
	}
	node := nodes[index]

	if err := c.checkNotRunning(ctx, index, node.Name); err != nil {
		return false, t.fail("check process", err)
	}

	if node.IsComplete() {
		ok, err := c.prompterFor(ctx).Confirm(ctx, types.Prompt{
			Title:   "Delete node: " + node.Name,
			Message: fmt.Sprintf("Delete node %q (%s)? This cannot be undone.", node.Name, node.Endpoint()),
			OK:      "Delete",
			Cancel:  "Cancel",
		})
		if err != nil {
			return false, t.fail("confirm", err)
		}
		if !ok {
			t.logger.Info("delete declined", "node", node.Name)
			return false, nil
		}
	}

	if _, err := c.store.DeleteNode(ctx, index); err != nil {
		return false, t.fail("delete node", err)
	}
	return true, nil
}

// AppendIndex makes AddOrUpdate append whatever the node count is at the
// time the transition runs.
const AppendIndex = -1

// AddOrUpdate appends node when index equals the node count or is
// AppendIndex, and replaces the node at index otherwise. The node of the
// running process cannot be replaced. Field validation is the caller's job.
func (c *Controller) AddOrUpdate(ctx context.Context, node *models.ServerNode, index int) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("add_or_update", "index", index)
	defer func() { c.finish(ctx, t, err) }()

	nodes, err := c.store.GetNodes(ctx)
	if err != nil {
		return t.fail("read nodes", err)
	}
	if index == AppendIndex {
		index = len(nodes)
	}

	if index >= 0 && index < len(nodes) {
		if err := c.checkNotRunning(ctx, index, nodes[index].Name); err != nil {
			return t.fail("check process", err)
		}
	}

	switch {
	case index == len(nodes):
		if err := c.store.AddNode(ctx, node); err != nil {
			return t.fail("add node", err)
		}
	case index >= 0 && index < len(nodes):
		if err := c.store.UpdateNode(ctx, index, node); err != nil {
			return t.fail("update node", err)
		}
	default:
		return t.fail("find node", &pkgerrors.NodeError{Index: index, Name: node.Name, Err: pkgerrors.ErrIndexOutOfRange})
	}
	return nil
}

// SetSystemProxy flips the system proxy on or off. Turning it on requires a
// managed process.
func (c *Controller) SetSystemProxy(ctx context.Context, on bool) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("system_proxy", "enabled", on)
	defer func() { c.finish(ctx, t, err) }()

	proc, err := c.resolve(ctx, t)
	if err != nil {
		return nil, err
	}

	if !on {
		if err := c.withRetry(ctx, t, "disable system proxy", func() error { return c.proxy.Disable(ctx) }); err != nil {
			return nil, t.fail("disable system proxy", err)
		}
		c.proxyEnabled = false
		return c.compose(ctx, proc)
	}

	if !proc.IsManaged() {
		return nil, t.fail("check process", pkgerrors.ErrNoManagedProcess)
	}
	cfg, err := c.store.GetConfiguration(ctx)
	if err != nil {
		return nil, t.fail("read configuration", err)
	}
	if err := c.ensureProxyOn(ctx, t, cfg.PAC); err != nil {
		return nil, err
	}
	return c.compose(ctx, proc)
}

// SetDaemon sets whether the managed process outlives hunter.
func (c *Controller) SetDaemon(ctx context.Context, on bool) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("daemon", "enabled", on)
	defer func() { c.finish(ctx, t, err) }()

	proc, err := c.resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	if !proc.IsManaged() {
		return nil, t.fail("check process", pkgerrors.ErrNoManagedProcess)
	}
	if err := c.daemon.SetDaemonFlag(ctx, on); err != nil {
		return nil, t.fail("set daemon", err)
	}
	return c.compose(ctx, proc)
}

// Shutdown runs when the controlling program exits. Without the daemon flag
// a managed process is stopped, system proxy first.
func (c *Controller) Shutdown(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("shutdown")
	defer func() { c.finish(ctx, t, err) }()

	daemon, err := c.daemon.GetDaemonFlag(ctx)
	if err != nil {
		return t.fail("read daemon", err)
	}
	if daemon {
		t.logger.Info("daemon on, leaving trojan-go running")
		return nil
	}

	proc, err := c.inspector.Inspect(ctx)
	if err != nil {
		return t.fail("inspect process", err)
	}
	if !proc.IsManaged() {
		return nil
	}

	if err := c.withRetry(ctx, t, "disable system proxy", func() error { return c.proxy.Disable(ctx) }); err != nil {
		return t.fail("disable system proxy", err)
	}
	c.proxyEnabled = false

	err = c.withRetry(ctx, t, "terminate trojan-go", func() error {
		return c.terminator.Terminate(ctx, proc.PID)
	})
	if err != nil {
		return t.fail("terminate trojan-go", err)
	}
	if err := c.store.ClearUsingNode(ctx); err != nil {
		return t.fail("clear using node", err)
	}
	return nil
}

// Reconcile resolves any conflicting process and returns the session state.
// It is meant to run once at startup.
func (c *Controller) Reconcile(ctx context.Context) (st *types.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("reconcile")
	defer func() { c.finish(ctx, t, err) }()

	proc, err := c.resolve(ctx, t)
	if err != nil {
		return nil, err
	}
	c.refreshProxy(ctx, t.logger)
	return c.compose(ctx, proc)
}

// State is an independent refresh of every view. A conflicting process is
// reported, not resolved.
func (c *Controller) State(ctx context.Context) (*types.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proc, err := c.inspector.Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process: %w", err)
	}
	c.refreshProxy(ctx, c.logger)
	return c.compose(ctx, proc)
}

// refreshProxy reads the OS proxy flag. When it cannot be read, for example
// on a desktop without a supported backend, the optimistic value is kept.
func (c *Controller) refreshProxy(ctx context.Context, logger *slog.Logger) {
	on, err := c.proxy.Enabled(ctx)
	if err != nil {
		logger.Warn("failed to query system proxy, keeping last known value",
			"enabled", c.proxyEnabled, "error", err)
		return
	}
	c.proxyEnabled = on
}

// Probe measures a request through the local listener. It is not a
// transition and does not wait for one.
func (c *Controller) Probe(ctx context.Context) (time.Duration, error) {
	if c.prober == nil {
		return 0, fmt.Errorf("no prober configured")
	}
	cfg, err := c.store.GetConfiguration(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read configuration: %w", err)
	}
	return c.prober.Probe(ctx, cfg.LocalAddr, cfg.LocalPort)
}

// Settings holds optional changes to the local listener and PAC settings.
type Settings struct {
	LocalAddr *string
	LocalPort *int
	PAC       *string
	LogLevel  *models.LogLevel
}

// UpdateSettings changes listener, PAC and log level settings. They are
// fixed while a session runs.
func (c *Controller) UpdateSettings(ctx context.Context, s Settings) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.begin("settings")
	defer func() { c.finish(ctx, t, err) }()

	proc, err := c.inspector.Inspect(ctx)
	if err != nil {
		return t.fail("inspect process", err)
	}
	if proc.IsManaged() {
		return t.fail("check process", pkgerrors.ErrSessionRunning)
	}

	updates := map[string]string{}
	if s.LocalAddr != nil {
		if *s.LocalAddr == "" {
			return t.fail("validate", fmt.Errorf("local address must not be empty"))
		}
		updates[storage.SettingLocalAddr] = *s.LocalAddr
	}
	if s.LocalPort != nil {
		if *s.LocalPort < 1 || *s.LocalPort > 65535 {
			return t.fail("validate", fmt.Errorf("local port out of range: %d", *s.LocalPort))
		}
		updates[storage.SettingLocalPort] = strconv.Itoa(*s.LocalPort)
	}
	if s.PAC != nil {
		updates[storage.SettingPAC] = *s.PAC
	}
	if s.LogLevel != nil {
		updates[storage.SettingLogLevel] = string(*s.LogLevel)
	}

	for key, value := range updates {
		if err := c.store.SetSetting(ctx, key, value); err != nil {
			return t.fail("save "+key, err)
		}
	}
	return nil
}

// checkNotRunning rejects changes to the node trojan-go is running with.
func (c *Controller) checkNotRunning(ctx context.Context, index int, name string) error {
	if name == "" {
		return nil
	}
	proc, err := c.inspector.Inspect(ctx)
	if err != nil {
		return err
	}
	if proc.ManagedName() == name {
		return &pkgerrors.NodeError{Index: index, Name: name, Err: pkgerrors.ErrSessionRunning}
	}
	return nil
}

func (c *Controller) compose(ctx context.Context, proc *types.ProcessState) (*types.State, error) {
	nodes, err := c.store.GetNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	marker, err := c.store.GetUsingNode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read using node: %w", err)
	}
	daemon, err := c.daemon.GetDaemonFlag(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon flag: %w", err)
	}

	st := &types.State{
		Phase:        types.PhaseIdle,
		Nodes:        types.Views(nodes, marker, proc),
		ProxyEnabled: c.proxyEnabled,
		Daemon:       daemon,
	}
	if proc.IsManaged() {
		st.Phase = types.PhaseRunning
		st.Node = proc.ManagedName()
		st.PID = proc.PID
	}
	if proc.IsConflict() {
		st.Conflict = proc
	}
	return st, nil
}
