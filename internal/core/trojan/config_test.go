package trojan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hunter/internal/storage/models"
)

func TestWriteConfigProducesTrojanClientFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	node := &models.ServerNode{Name: "n1", Addr: "example.com", Port: 8443, Password: "secret"}
	cfg := models.DefaultConfiguration()
	cfg.LogLevel = models.LogLevelWarn

	if err := WriteConfig(path, NewClientConfig(node, cfg)); err != nil {
		t.Fatalf("WriteConfig() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["run_type"] != "client" {
		t.Fatalf("expected client run_type, got %v", raw["run_type"])
	}
	if raw["log_level"] != float64(2) {
		t.Fatalf("expected warn level 2, got %v", raw["log_level"])
	}
	if raw["local_port"] != float64(models.DefaultLocalPort) {
		t.Fatalf("unexpected local_port %v", raw["local_port"])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	back, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig() error: %v", err)
	}
	if !back.Matches(node) {
		t.Fatalf("expected config to match node, got %+v", back)
	}
}

func TestReadConfigMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := ReadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || cfg != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", cfg, err)
	}
}

func TestTrojanLogLevels(t *testing.T) {
	t.Parallel()

	want := map[models.LogLevel]int{
		models.LogLevelTrace: -1,
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}
	for lvl, n := range want {
		if got := lvl.TrojanLevel(); got != n {
			t.Errorf("%s.TrojanLevel() = %d, want %d", lvl, got, n)
		}
	}
}
