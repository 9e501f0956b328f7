package models

import (
	"fmt"
	"time"
)

// DefaultNodePort is the port a freshly added placeholder node starts with.
const DefaultNodePort = 443

// ServerNode represents a trojan server the local client can connect to
type ServerNode struct {
	ID       int64  `json:"id,omitempty" yaml:"-"`
	Name     string `json:"name" yaml:"name"`
	Addr     string `json:"addr" yaml:"addr"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// IsComplete reports whether every connection field is set.
func (n *ServerNode) IsComplete() bool {
	return n.Name != "" && n.Addr != "" && n.Port > 0 && n.Password != ""
}

// Endpoint returns addr:port.
func (n *ServerNode) Endpoint() string {
	return fmt.Sprintf("%s:%d", n.Addr, n.Port)
}

// SameServer reports whether both nodes point at the same server with the same credentials.
func (n *ServerNode) SameServer(addr string, port int, password string) bool {
	return n.Addr == addr && n.Port == port && n.Password == password
}
