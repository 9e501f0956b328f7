package latency

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"hunter/internal/storage/models"
)

// Strategy defines how a latency test is performed against a single node.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() string
	// Test performs a latency test and returns the round-trip time in milliseconds.
	Test(ctx context.Context, node *models.ServerNode) (latencyMS int, err error)
}

// TCPStrategy measures latency via a TCP handshake to node.Addr:node.Port.
// It only verifies reachability of the trojan server, not the protocol.
type TCPStrategy struct{}

func (s *TCPStrategy) Name() string { return "tcp" }

func (s *TCPStrategy) Test(ctx context.Context, node *models.ServerNode) (int, error) {
	if node.Addr == "" || node.Port == 0 {
		return 0, fmt.Errorf("node %q has no endpoint", node.Name)
	}
	address := net.JoinHostPort(node.Addr, strconv.Itoa(node.Port))

	start := time.Now()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, fmt.Errorf("tcp handshake failed: %w", err)
	}
	elapsed := time.Since(start)
	conn.Close()

	return int(elapsed.Milliseconds()), nil
}

// NewStrategy creates a Strategy by name. Valid names: "tcp".
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "tcp", "":
		return &TCPStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown test strategy: %s (available: tcp)", name)
	}
}
