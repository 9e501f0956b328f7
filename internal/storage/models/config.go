package models

import (
	"fmt"
	"strings"
)

// Defaults used when a setting has never been written.
const (
	DefaultLocalAddr = "127.0.0.1"
	DefaultLocalPort = 1086
	DefaultPAC       = "https://mirror.ghproxy.com/https://raw.githubusercontent.com/thep0y/pac/main/blacklist.pac"
)

// Configuration is the persisted singleton describing which nodes exist and
// how the local trojan-go client listens.
type Configuration struct {
	LocalAddr string        `json:"local_addr" yaml:"local_addr"`
	LocalPort int           `json:"local_port" yaml:"local_port"`
	PAC       string        `json:"pac" yaml:"pac"`
	LogLevel  LogLevel      `json:"log_level" yaml:"log_level"`
	Nodes     []*ServerNode `json:"nodes" yaml:"nodes"`
}

// DefaultConfiguration returns a configuration with no nodes and default settings.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		LocalAddr: DefaultLocalAddr,
		LocalPort: DefaultLocalPort,
		PAC:       DefaultPAC,
		LogLevel:  LogLevelInfo,
	}
}

// NodeByName returns the node with the given name, or nil.
func (c *Configuration) NodeByName(name string) *ServerNode {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// LogLevel is the trojan-go client log level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel parses a level name, case-insensitively.
func ParseLogLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return l, nil
	case "":
		return LogLevelInfo, nil
	default:
		return "", fmt.Errorf("unknown log level: %s (available: trace, debug, info, warn, error)", s)
	}
}

// TrojanLevel returns the numeric level written to the trojan-go config file.
func (l LogLevel) TrojanLevel() int {
	switch l {
	case LogLevelTrace:
		return -1
	case LogLevelDebug:
		return 0
	case LogLevelWarn:
		return 2
	case LogLevelError:
		return 3
	default:
		return 1
	}
}
