package types

import (
	"fmt"

	"hunter/internal/storage/models"
)

// ProcessKind classifies a running trojan-go process
type ProcessKind string

const (
	ProcessManaged ProcessKind = "managed" // started by hunter, matches a configured node
	ProcessForeign ProcessKind = "foreign" // not started by hunter
	ProcessInvalid ProcessKind = "invalid" // started by hunter, matches no configured node
)

// ProcessState is a point-in-time snapshot of the trojan-go process.
// A nil *ProcessState means no process is running.
type ProcessState struct {
	Kind ProcessKind        `json:"kind"`
	PID  int                `json:"pid"`
	Node *models.ServerNode `json:"node,omitempty"` // set only for ProcessManaged
}

// Managed builds a managed state for node.
func Managed(pid int, node *models.ServerNode) *ProcessState {
	return &ProcessState{Kind: ProcessManaged, PID: pid, Node: node}
}

// Foreign builds a foreign state.
func Foreign(pid int) *ProcessState {
	return &ProcessState{Kind: ProcessForeign, PID: pid}
}

// Invalid builds an invalid state.
func Invalid(pid int) *ProcessState {
	return &ProcessState{Kind: ProcessInvalid, PID: pid}
}

// IsManaged reports whether s is a managed process.
func (s *ProcessState) IsManaged() bool {
	return s != nil && s.Kind == ProcessManaged
}

// IsConflict reports whether s needs conflict resolution.
func (s *ProcessState) IsConflict() bool {
	return s != nil && (s.Kind == ProcessForeign || s.Kind == ProcessInvalid)
}

// ManagedName returns the node name of a managed process, or "".
func (s *ProcessState) ManagedName() string {
	if !s.IsManaged() || s.Node == nil {
		return ""
	}
	return s.Node.Name
}

func (s *ProcessState) String() string {
	if s == nil {
		return "none"
	}
	if s.IsManaged() {
		return fmt.Sprintf("managed(%s, pid %d)", s.ManagedName(), s.PID)
	}
	return fmt.Sprintf("%s(pid %d)", s.Kind, s.PID)
}

// Phase is the derived session phase
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
)

// NodeView is a node as shown to a user: Using is derived from the persisted
// marker and the live process snapshot, never stored.
type NodeView struct {
	models.ServerNode
	Using bool `json:"using"`
}

// State is the composite session state returned after every transition
type State struct {
	Phase        Phase         `json:"phase"`
	Node         string        `json:"node,omitempty"`
	PID          int           `json:"pid,omitempty"`
	Nodes        []NodeView    `json:"nodes"`
	ProxyEnabled bool          `json:"proxy_enabled"`
	Daemon       bool          `json:"daemon"`
	Conflict     *ProcessState `json:"conflict,omitempty"`
}

// UsingCount returns how many nodes are marked using.
func (s *State) UsingCount() int {
	n := 0
	for _, v := range s.Nodes {
		if v.Using {
			n++
		}
	}
	return n
}

// Views projects nodes into NodeViews. A node is using only when it is both
// the persisted marker and the node of the managed process.
func Views(nodes []*models.ServerNode, marker string, proc *ProcessState) []NodeView {
	running := proc.ManagedName()
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, NodeView{
			ServerNode: *n,
			Using:      n.Name != "" && n.Name == marker && n.Name == running,
		})
	}
	return views
}
