package trojan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"hunter/internal/core/types"
	"hunter/internal/storage/models"
)

// Process is one entry of the OS process table.
type Process struct {
	PID  int
	Name string
	Args []string
}

// ProcessLister lists running processes.
type ProcessLister interface {
	List(ctx context.Context) ([]Process, error)
}

// NodeSource supplies the configured nodes and the persisted using marker.
type NodeSource interface {
	GetNodes(ctx context.Context) ([]*models.ServerNode, error)
	GetUsingNode(ctx context.Context) (string, error)
}

// Inspector classifies the running trojan-go process. Every call takes a
// fresh snapshot; nothing is cached between calls.
type Inspector struct {
	lister     ProcessLister
	nodes      NodeSource
	configPath string
	binaryName string
	logger     *slog.Logger
}

// NewInspector creates an Inspector that recognises processes launched with
// `-config configPath` as hunter's own.
func NewInspector(lister ProcessLister, nodes NodeSource, configPath string, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		lister:     lister,
		nodes:      nodes,
		configPath: configPath,
		binaryName: BinaryName(),
		logger:     logger,
	}
}

// Inspect returns nil when no trojan-go process runs. Otherwise the first
// trojan-go process is classified:
//   - not launched as `trojan-go -config <our config>`: Foreign
//   - ours, and the config on disk matches a node: Managed
//   - ours, but the config is unreadable or matches no node: Invalid
func (i *Inspector) Inspect(ctx context.Context) (*types.ProcessState, error) {
	procs, err := i.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	sort.Slice(procs, func(a, b int) bool { return procs[a].PID < procs[b].PID })

	var found *Process
	for idx := range procs {
		if procs[idx].Name == i.binaryName {
			found = &procs[idx]
			break
		}
	}
	if found == nil {
		i.logger.Debug("no trojan-go process")
		return nil, nil
	}

	if !i.launchedByUs(found.Args) {
		i.logger.Warn("trojan-go process not started by hunter", "pid", found.PID, "args", found.Args)
		return types.Foreign(found.PID), nil
	}

	clientCfg, err := ReadConfig(i.configPath)
	if err != nil || clientCfg == nil {
		i.logger.Warn("hunter trojan-go process has no readable config", "pid", found.PID, "error", err)
		return types.Invalid(found.PID), nil
	}

	nodes, err := i.nodes.GetNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	marker, err := i.nodes.GetUsingNode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read using marker: %w", err)
	}

	var match *models.ServerNode
	for _, n := range nodes {
		if !clientCfg.Matches(n) {
			continue
		}
		if match == nil || n.Name == marker {
			match = n
		}
	}
	if match == nil {
		i.logger.Warn("hunter trojan-go process matches no configured node", "pid", found.PID,
			"remote", fmt.Sprintf("%s:%d", clientCfg.RemoteAddr, clientCfg.RemotePort))
		return types.Invalid(found.PID), nil
	}

	i.logger.Debug("managed trojan-go process", "pid", found.PID, "node", match.Name)
	return types.Managed(found.PID, match), nil
}

func (i *Inspector) launchedByUs(args []string) bool {
	if len(args) < 3 || args[1] != "-config" {
		return false
	}
	return samePath(args[2], i.configPath)
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && filepath.Clean(absA) == filepath.Clean(absB)
}
