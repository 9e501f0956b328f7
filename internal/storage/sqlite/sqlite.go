package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// dbHandle is the common interface between *sql.DB and *sql.Tx.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB implements the Storage interface using SQLite
type DB struct {
	db *sql.DB
}

var _ storage.Storage = (*DB)(nil)

// New creates a new SQLite storage instance
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &DB{db: db}

	if err := runMigrations(storage); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (d *DB) withTx(ctx context.Context, fn func(h dbHandle) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ─── Node operations ────────────────────────────────────────────────────────

const nodeColumns = `id, name, addr, port, password, created_at, updated_at`

func scanNode(scan func(dest ...interface{}) error) (*models.ServerNode, error) {
	node := &models.ServerNode{}
	err := scan(&node.ID, &node.Name, &node.Addr, &node.Port, &node.Password, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// AddNode appends a node. A node whose non-empty name or address is already
// used by another node is rejected with ErrNodeExists.
func (d *DB) AddNode(ctx context.Context, node *models.ServerNode) error {
	return d.withTx(ctx, func(h dbHandle) error {
		return addNode(ctx, h, node)
	})
}

func addNode(ctx context.Context, h dbHandle, node *models.ServerNode) error {
	var dup int
	err := h.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM nodes
		WHERE (name = ? AND name != '') OR (addr = ? AND addr != '')
	`, node.Name, node.Addr).Scan(&dup)
	if err != nil {
		return err
	}
	if dup > 0 {
		return &pkgerrors.NodeError{Index: -1, Name: node.Name, Err: pkgerrors.ErrNodeExists}
	}

	query := `
		INSERT INTO nodes (position, name, addr, port, password)
		VALUES ((SELECT COALESCE(MAX(position), -1) + 1 FROM nodes), ?, ?, ?, ?)
	`
	result, err := h.ExecContext(ctx, query, node.Name, node.Addr, node.Port, node.Password)
	if err != nil {
		return fmt.Errorf("failed to add node: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	node.ID = id
	return nil
}

// UpdateNode replaces the node at index in place. If the node currently
// carries the using marker, the marker follows a rename.
func (d *DB) UpdateNode(ctx context.Context, index int, node *models.ServerNode) error {
	return d.withTx(ctx, func(h dbHandle) error {
		current, err := nodeAt(ctx, h, index)
		if err != nil {
			return err
		}

		if node.Name != "" {
			var dup int
			err := h.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM nodes WHERE name = ? AND id != ?", node.Name, current.ID,
			).Scan(&dup)
			if err != nil {
				return err
			}
			if dup > 0 {
				return &pkgerrors.NodeError{Index: index, Name: node.Name, Err: pkgerrors.ErrNodeExists}
			}
		}

		_, err = h.ExecContext(ctx,
			"UPDATE nodes SET name = ?, addr = ?, port = ?, password = ? WHERE id = ?",
			node.Name, node.Addr, node.Port, node.Password, current.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
		node.ID = current.ID

		if current.Name != "" && current.Name != node.Name {
			_, err = h.ExecContext(ctx,
				"UPDATE session SET using_node = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1 AND using_node = ?",
				node.Name, current.Name,
			)
			if err != nil {
				return fmt.Errorf("failed to move using marker: %w", err)
			}
		}
		return nil
	})
}

// DeleteNode removes the node at index and returns it. The using marker is
// cleared when it named the removed node.
func (d *DB) DeleteNode(ctx context.Context, index int) (*models.ServerNode, error) {
	var deleted *models.ServerNode
	err := d.withTx(ctx, func(h dbHandle) error {
		node, err := nodeAt(ctx, h, index)
		if err != nil {
			return err
		}
		if _, err := h.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", node.ID); err != nil {
			return fmt.Errorf("failed to delete node: %w", err)
		}
		if node.Name != "" {
			_, err = h.ExecContext(ctx,
				"UPDATE session SET using_node = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = 1 AND using_node = ?",
				node.Name,
			)
			if err != nil {
				return fmt.Errorf("failed to clear using marker: %w", err)
			}
		}
		deleted = node
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func nodeAt(ctx context.Context, h dbHandle, index int) (*models.ServerNode, error) {
	if index < 0 {
		return nil, &pkgerrors.NodeError{Index: index, Err: pkgerrors.ErrIndexOutOfRange}
	}
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY position ASC, id ASC LIMIT 1 OFFSET ?`
	node, err := scanNode(h.QueryRowContext(ctx, query, index).Scan)
	if err == sql.ErrNoRows {
		return nil, &pkgerrors.NodeError{Index: index, Err: pkgerrors.ErrIndexOutOfRange}
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (d *DB) GetNodes(ctx context.Context) ([]*models.ServerNode, error) {
	return getNodes(ctx, d.db)
}

func getNodes(ctx context.Context, h dbHandle) ([]*models.ServerNode, error) {
	rows, err := h.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*models.ServerNode
	for rows.Next() {
		node, err := scanNode(rows.Scan)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (d *DB) GetNodeByName(ctx context.Context, name string) (*models.ServerNode, error) {
	return getNodeByName(ctx, d.db, name)
}

func getNodeByName(ctx context.Context, h dbHandle, name string) (*models.ServerNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE name = ? ORDER BY position ASC LIMIT 1`
	node, err := scanNode(h.QueryRowContext(ctx, query, name).Scan)
	if err == sql.ErrNoRows || name == "" {
		return nil, &pkgerrors.NodeError{Index: -1, Name: name, Err: pkgerrors.ErrNodeNotFound}
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ─── Configuration ──────────────────────────────────────────────────────────

// GetConfiguration assembles the configuration singleton from settings and nodes.
func (d *DB) GetConfiguration(ctx context.Context) (*models.Configuration, error) {
	settings, err := getAllSettings(ctx, d.db)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	cfg := models.DefaultConfiguration()
	if v := settings[storage.SettingLocalAddr]; v != "" {
		cfg.LocalAddr = v
	}
	if v, err := strconv.Atoi(settings[storage.SettingLocalPort]); err == nil && v > 0 {
		cfg.LocalPort = v
	}
	if v := settings[storage.SettingPAC]; v != "" {
		cfg.PAC = v
	}
	if lvl, err := models.ParseLogLevel(settings[storage.SettingLogLevel]); err == nil {
		cfg.LogLevel = lvl
	}

	cfg.Nodes, err = getNodes(ctx, d.db)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	return cfg, nil
}

// SaveConfiguration replaces settings and the whole node list atomically.
// The using marker survives only if its node is still present.
func (d *DB) SaveConfiguration(ctx context.Context, cfg *models.Configuration) error {
	return d.withTx(ctx, func(h dbHandle) error {
		settings := map[string]string{
			storage.SettingLocalAddr: cfg.LocalAddr,
			storage.SettingLocalPort: strconv.Itoa(cfg.LocalPort),
			storage.SettingPAC:       cfg.PAC,
			storage.SettingLogLevel:  string(cfg.LogLevel),
		}
		for key, value := range settings {
			if err := setSetting(ctx, h, key, value); err != nil {
				return fmt.Errorf("failed to save setting %s: %w", key, err)
			}
		}

		if _, err := h.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
			return fmt.Errorf("failed to clear nodes: %w", err)
		}
		for _, node := range cfg.Nodes {
			if err := addNode(ctx, h, node); err != nil {
				return err
			}
		}

		_, err := h.ExecContext(ctx, `
			UPDATE session SET using_node = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = 1 AND using_node IS NOT NULL
			  AND using_node NOT IN (SELECT name FROM nodes)
		`)
		return err
	})
}

// ─── Session operations ─────────────────────────────────────────────────────

func (d *DB) GetSession(ctx context.Context) (*models.Session, error) {
	query := `SELECT id, using_node, daemon, updated_at FROM session WHERE id = 1`
	session := &models.Session{}
	var using sql.NullString
	err := d.db.QueryRowContext(ctx, query).Scan(&session.ID, &using, &session.Daemon, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.Session{ID: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	session.UsingNode = using.String
	return session, nil
}

// SetUsingNode marks name as the node in use. The node must exist.
func (d *DB) SetUsingNode(ctx context.Context, name string) error {
	return d.withTx(ctx, func(h dbHandle) error {
		if _, err := getNodeByName(ctx, h, name); err != nil {
			return err
		}
		_, err := h.ExecContext(ctx,
			"UPDATE session SET using_node = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1", name,
		)
		if err != nil {
			return fmt.Errorf("failed to set using node: %w", err)
		}
		return nil
	})
}

func (d *DB) GetUsingNode(ctx context.Context) (string, error) {
	session, err := d.GetSession(ctx)
	if err != nil {
		return "", err
	}
	return session.UsingNode, nil
}

func (d *DB) ClearUsingNode(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE session SET using_node = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
	)
	return err
}

func (d *DB) GetDaemonFlag(ctx context.Context) (bool, error) {
	session, err := d.GetSession(ctx)
	if err != nil {
		return false, err
	}
	return session.Daemon, nil
}

func (d *DB) SetDaemonFlag(ctx context.Context, daemon bool) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE session SET daemon = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1", daemon,
	)
	return err
}

// ─── Latency operations ─────────────────────────────────────────────────────

func (d *DB) RecordLatency(ctx context.Context, latency *models.LatencyTest) error {
	query := `
		INSERT INTO latency_tests (node_id, latency_ms, success, error_message, test_strategy)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := d.db.ExecContext(ctx, query,
		latency.NodeID, latency.LatencyMS, latency.Success, latency.ErrorMessage, latency.TestStrategy,
	)
	if err != nil {
		return fmt.Errorf("failed to record latency: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	latency.ID = id
	return nil
}

const latencyColumns = `id, node_id, latency_ms, success, error_message, test_strategy, tested_at`

func scanLatency(scan func(dest ...interface{}) error) (*models.LatencyTest, error) {
	latency := &models.LatencyTest{}
	var errMsg sql.NullString
	var latencyMS sql.NullInt64
	err := scan(&latency.ID, &latency.NodeID, &latencyMS, &latency.Success,
		&errMsg, &latency.TestStrategy, &latency.TestedAt)
	if err != nil {
		return nil, err
	}
	if latencyMS.Valid {
		ms := int(latencyMS.Int64)
		latency.LatencyMS = &ms
	}
	latency.ErrorMessage = errMsg.String
	return latency, nil
}

func (d *DB) GetLatestLatency(ctx context.Context, nodeID int64) (*models.LatencyTest, error) {
	query := `SELECT ` + latencyColumns + ` FROM latency_tests WHERE node_id = ? ORDER BY tested_at DESC, id DESC LIMIT 1`
	latency, err := scanLatency(d.db.QueryRowContext(ctx, query, nodeID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return latency, nil
}

func (d *DB) GetLatencyHistory(ctx context.Context, nodeID int64, limit int) ([]*models.LatencyTest, error) {
	query := `SELECT ` + latencyColumns + ` FROM latency_tests WHERE node_id = ? ORDER BY tested_at DESC, id DESC LIMIT ?`
	rows, err := d.db.QueryContext(ctx, query, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latencies []*models.LatencyTest
	for rows.Next() {
		latency, err := scanLatency(rows.Scan)
		if err != nil {
			return nil, err
		}
		latencies = append(latencies, latency)
	}
	return latencies, rows.Err()
}

// ─── Settings operations ────────────────────────────────────────────────────

func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting not found: %s", key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, d.db, key, value)
}

func setSetting(ctx context.Context, h dbHandle, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := h.ExecContext(ctx, query, key, value)
	return err
}

func (d *DB) GetAllSettings(ctx context.Context) (map[string]string, error) {
	return getAllSettings(ctx, d.db)
}

func getAllSettings(ctx context.Context, h dbHandle) (map[string]string, error) {
	rows, err := h.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}
