package storage

import (
	"context"

	"hunter/internal/storage/models"
)

// Setting keys
const (
	SettingLocalAddr = "local_addr"
	SettingLocalPort = "local_port"
	SettingPAC       = "pac"
	SettingLogLevel  = "log_level"
	SettingBinary    = "trojan_binary"

	SettingLatencyTimeout  = "latency_test_timeout" // milliseconds
	SettingLatencyWorkers  = "latency_test_workers"
	SettingMonitorInterval = "monitor_interval" // seconds
)

// Storage defines the interface for data persistence
type Storage interface {
	// Node operations. Indexes are display positions starting at 0.
	AddNode(ctx context.Context, node *models.ServerNode) error
	UpdateNode(ctx context.Context, index int, node *models.ServerNode) error
	DeleteNode(ctx context.Context, index int) (*models.ServerNode, error)
	GetNodes(ctx context.Context) ([]*models.ServerNode, error)
	GetNodeByName(ctx context.Context, name string) (*models.ServerNode, error)

	// Configuration snapshot (settings + nodes)
	GetConfiguration(ctx context.Context) (*models.Configuration, error)
	SaveConfiguration(ctx context.Context, cfg *models.Configuration) error

	// Session: using marker and daemon preference
	GetSession(ctx context.Context) (*models.Session, error)
	SetUsingNode(ctx context.Context, name string) error
	GetUsingNode(ctx context.Context) (string, error)
	ClearUsingNode(ctx context.Context) error
	GetDaemonFlag(ctx context.Context) (bool, error)
	SetDaemonFlag(ctx context.Context, daemon bool) error

	// Latency operations
	RecordLatency(ctx context.Context, latency *models.LatencyTest) error
	GetLatestLatency(ctx context.Context, nodeID int64) (*models.LatencyTest, error)
	GetLatencyHistory(ctx context.Context, nodeID int64, limit int) ([]*models.LatencyTest, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// Close closes the storage connection
	Close() error
}
