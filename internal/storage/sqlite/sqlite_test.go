package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "hunter.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func node(name, addr string) *models.ServerNode {
	return &models.ServerNode{Name: name, Addr: addr, Port: 443, Password: "p-" + name}
}

func TestGetConfigurationDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	cfg, err := db.GetConfiguration(ctx)
	if err != nil {
		t.Fatalf("GetConfiguration() error: %v", err)
	}
	if cfg.LocalAddr != models.DefaultLocalAddr || cfg.LocalPort != models.DefaultLocalPort {
		t.Fatalf("unexpected listen endpoint %s:%d", cfg.LocalAddr, cfg.LocalPort)
	}
	if cfg.PAC != models.DefaultPAC {
		t.Fatalf("unexpected pac %q", cfg.PAC)
	}
	if cfg.LogLevel != models.LogLevelInfo {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
	if len(cfg.Nodes) != 0 {
		t.Fatalf("expected no nodes, got %d", len(cfg.Nodes))
	}
}

func TestAddNodeKeepsOrderAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	for _, n := range []*models.ServerNode{node("b", "2.2.2.2"), node("a", "1.1.1.1")} {
		if err := db.AddNode(ctx, n); err != nil {
			t.Fatalf("AddNode(%s) error: %v", n.Name, err)
		}
	}

	err := db.AddNode(ctx, node("c", "1.1.1.1"))
	if !errors.Is(err, pkgerrors.ErrNodeExists) {
		t.Fatalf("expected ErrNodeExists for duplicate addr, got %v", err)
	}
	err = db.AddNode(ctx, node("a", "3.3.3.3"))
	if !errors.Is(err, pkgerrors.ErrNodeExists) {
		t.Fatalf("expected ErrNodeExists for duplicate name, got %v", err)
	}

	// Placeholders never collide with each other.
	for i := 0; i < 2; i++ {
		if err := db.AddNode(ctx, &models.ServerNode{Port: models.DefaultNodePort}); err != nil {
			t.Fatalf("AddNode(placeholder) error: %v", err)
		}
	}

	nodes, err := db.GetNodes(ctx)
	if err != nil {
		t.Fatalf("GetNodes() error: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "b" || nodes[1].Name != "a" {
		t.Fatalf("expected insertion order b, a; got %s, %s", nodes[0].Name, nodes[1].Name)
	}
}

func TestUpdateNodeMovesUsingMarker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	if err := db.AddNode(ctx, node("a", "1.1.1.1")); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if err := db.SetUsingNode(ctx, "a"); err != nil {
		t.Fatalf("SetUsingNode() error: %v", err)
	}

	if err := db.UpdateNode(ctx, 0, node("renamed", "1.1.1.1")); err != nil {
		t.Fatalf("UpdateNode() error: %v", err)
	}
	using, err := db.GetUsingNode(ctx)
	if err != nil {
		t.Fatalf("GetUsingNode() error: %v", err)
	}
	if using != "renamed" {
		t.Fatalf("expected marker to follow rename, got %q", using)
	}

	err = db.UpdateNode(ctx, 5, node("x", "9.9.9.9"))
	if !errors.Is(err, pkgerrors.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestDeleteNodeClearsUsingMarker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	for _, n := range []*models.ServerNode{node("a", "1.1.1.1"), node("b", "2.2.2.2")} {
		if err := db.AddNode(ctx, n); err != nil {
			t.Fatalf("AddNode() error: %v", err)
		}
	}
	if err := db.SetUsingNode(ctx, "b"); err != nil {
		t.Fatalf("SetUsingNode() error: %v", err)
	}

	deleted, err := db.DeleteNode(ctx, 1)
	if err != nil {
		t.Fatalf("DeleteNode() error: %v", err)
	}
	if deleted.Name != "b" {
		t.Fatalf("expected to delete b, got %s", deleted.Name)
	}
	using, _ := db.GetUsingNode(ctx)
	if using != "" {
		t.Fatalf("expected marker cleared, got %q", using)
	}

	if _, err := db.DeleteNode(ctx, 0); err != nil {
		t.Fatalf("DeleteNode(last) error: %v", err)
	}
	nodes, _ := db.GetNodes(ctx)
	if len(nodes) != 0 {
		t.Fatalf("expected empty node list, got %d", len(nodes))
	}
}

func TestSetUsingNodeRequiresExistingNode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	err := db.SetUsingNode(ctx, "ghost")
	if !errors.Is(err, pkgerrors.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestDaemonFlagRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	daemon, err := db.GetDaemonFlag(ctx)
	if err != nil {
		t.Fatalf("GetDaemonFlag() error: %v", err)
	}
	if daemon {
		t.Fatalf("expected daemon off by default")
	}
	if err := db.SetDaemonFlag(ctx, true); err != nil {
		t.Fatalf("SetDaemonFlag() error: %v", err)
	}
	if daemon, _ = db.GetDaemonFlag(ctx); !daemon {
		t.Fatalf("expected daemon on")
	}
}

func TestSaveConfigurationReplacesNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	if err := db.AddNode(ctx, node("old", "1.1.1.1")); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if err := db.SetUsingNode(ctx, "old"); err != nil {
		t.Fatalf("SetUsingNode() error: %v", err)
	}

	cfg := &models.Configuration{
		LocalAddr: "0.0.0.0",
		LocalPort: 2080,
		PAC:       "http://example.com/proxy.pac",
		LogLevel:  models.LogLevelDebug,
		Nodes:     []*models.ServerNode{node("new", "4.4.4.4")},
	}
	if err := db.SaveConfiguration(ctx, cfg); err != nil {
		t.Fatalf("SaveConfiguration() error: %v", err)
	}

	got, err := db.GetConfiguration(ctx)
	if err != nil {
		t.Fatalf("GetConfiguration() error: %v", err)
	}
	if got.LocalAddr != "0.0.0.0" || got.LocalPort != 2080 || got.LogLevel != models.LogLevelDebug {
		t.Fatalf("settings not saved: %+v", got)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].Name != "new" {
		t.Fatalf("nodes not replaced: %+v", got.Nodes)
	}
	if using, _ := db.GetUsingNode(ctx); using != "" {
		t.Fatalf("expected stale marker cleared, got %q", using)
	}
}

func TestLatencyHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)

	n := node("a", "1.1.1.1")
	if err := db.AddNode(ctx, n); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}

	ms := 42
	if err := db.RecordLatency(ctx, &models.LatencyTest{NodeID: n.ID, LatencyMS: &ms, Success: true, TestStrategy: "tcp"}); err != nil {
		t.Fatalf("RecordLatency() error: %v", err)
	}
	if err := db.RecordLatency(ctx, &models.LatencyTest{NodeID: n.ID, ErrorMessage: "refused", TestStrategy: "tcp"}); err != nil {
		t.Fatalf("RecordLatency() error: %v", err)
	}

	latest, err := db.GetLatestLatency(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetLatestLatency() error: %v", err)
	}
	if latest == nil || latest.Success || latest.ErrorMessage != "refused" {
		t.Fatalf("unexpected latest result: %+v", latest)
	}

	history, err := db.GetLatencyHistory(ctx, n.ID, 10)
	if err != nil {
		t.Fatalf("GetLatencyHistory() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 results, got %d", len(history))
	}
	if history[1].LatencyMS == nil || *history[1].LatencyMS != 42 {
		t.Fatalf("unexpected first result: %+v", history[1])
	}
}
