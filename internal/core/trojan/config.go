package trojan

import (
	"encoding/json"
	"fmt"
	"os"

	"hunter/internal/paths"
	"hunter/internal/storage/models"
)

// ClientConfig represents the trojan-go client configuration file
type ClientConfig struct {
	RunType    string   `json:"run_type"`
	LogLevel   int      `json:"log_level"`
	LogFile    string   `json:"log_file,omitempty"`
	LocalAddr  string   `json:"local_addr"`
	LocalPort  int      `json:"local_port"`
	RemoteAddr string   `json:"remote_addr"`
	RemotePort int      `json:"remote_port"`
	Password   []string `json:"password"`
}

// NewClientConfig builds the client config that connects through node.
func NewClientConfig(node *models.ServerNode, cfg *models.Configuration) *ClientConfig {
	return &ClientConfig{
		RunType:    "client",
		LogLevel:   cfg.LogLevel.TrojanLevel(),
		LocalAddr:  cfg.LocalAddr,
		LocalPort:  cfg.LocalPort,
		RemoteAddr: node.Addr,
		RemotePort: node.Port,
		Password:   []string{node.Password},
	}
}

// FirstPassword returns the first password, or "".
func (c *ClientConfig) FirstPassword() string {
	if len(c.Password) == 0 {
		return ""
	}
	return c.Password[0]
}

// Matches reports whether node is the server this config connects to.
func (c *ClientConfig) Matches(node *models.ServerNode) bool {
	return node.SameServer(c.RemoteAddr, c.RemotePort, c.FirstPassword())
}

// WriteConfig writes c to path, readable only by its owner.
func WriteConfig(path string, c *ClientConfig) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trojan-go config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write trojan-go config: %w", err)
	}
	paths.ChownToRealUser(path)
	return nil
}

// ReadConfig reads the client config at path. A missing file yields (nil, nil).
func ReadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trojan-go config: %w", err)
	}
	c := &ClientConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse trojan-go config: %w", err)
	}
	return c, nil
}
