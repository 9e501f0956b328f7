package core

import (
	"context"
	"time"

	"hunter/internal/core/types"
	"hunter/internal/storage/models"
)

// Inspector takes a fresh snapshot of the trojan-go process.
type Inspector interface {
	Inspect(ctx context.Context) (*types.ProcessState, error)
}

// Spawner starts trojan-go for a node and returns its pid.
type Spawner interface {
	Start(ctx context.Context, node *models.ServerNode, cfg *models.Configuration) (int, error)
}

// Terminator kills a process by pid.
type Terminator interface {
	Terminate(ctx context.Context, pid int) error
}

// ConfigStore is the persisted configuration and using marker.
type ConfigStore interface {
	GetConfiguration(ctx context.Context) (*models.Configuration, error)
	GetNodes(ctx context.Context) ([]*models.ServerNode, error)
	AddNode(ctx context.Context, node *models.ServerNode) error
	UpdateNode(ctx context.Context, index int, node *models.ServerNode) error
	DeleteNode(ctx context.Context, index int) (*models.ServerNode, error)
	SetUsingNode(ctx context.Context, name string) error
	GetUsingNode(ctx context.Context) (string, error)
	ClearUsingNode(ctx context.Context) error
	SetSetting(ctx context.Context, key, value string) error
}

// DaemonFlag is the persisted "survive hunter exiting" preference.
type DaemonFlag interface {
	GetDaemonFlag(ctx context.Context) (bool, error)
	SetDaemonFlag(ctx context.Context, daemon bool) error
}

// SystemProxy is the OS PAC toggle. Reads right after a write may be stale.
type SystemProxy interface {
	Enabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context, pac string) error
	Disable(ctx context.Context) error
}

// Prober checks connectivity through the local proxy listener.
type Prober interface {
	Probe(ctx context.Context, localAddr string, localPort int) (time.Duration, error)
}

// Recorder observes finished transitions.
type Recorder interface {
	RecordTransition(ctx context.Context, op string, err error)
}

type prompterKey struct{}

// WithPrompter returns a context whose confirmations go to p instead of the
// controller's default prompter.
func WithPrompter(ctx context.Context, p types.Prompter) context.Context {
	return context.WithValue(ctx, prompterKey{}, p)
}
