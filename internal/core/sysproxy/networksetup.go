package sysproxy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var autoProxyEnabled = regexp.MustCompile(`(?m)^Enabled:\s*(.+)$`)

// networkSetup drives macOS proxy settings on every active network service.
type networkSetup struct {
	runner CommandRunner
}

// activeNetworkServices returns all non-disabled network services.
func (n networkSetup) activeNetworkServices(ctx context.Context) ([]string, error) {
	out, err := n.runner.Run(ctx, "networksetup", "-listallnetworkservices")
	if err != nil {
		return nil, err
	}

	var services []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		// Skip the header line, empty lines and disabled services (marked with *).
		if line == "" || strings.HasPrefix(line, "An asterisk") || strings.HasPrefix(line, "*") {
			continue
		}
		services = append(services, line)
	}

	if len(services) == 0 {
		return nil, fmt.Errorf("no active network services found")
	}
	return services, nil
}

func (n networkSetup) enabled(ctx context.Context) (bool, error) {
	services, err := n.activeNetworkServices(ctx)
	if err != nil {
		return false, err
	}
	for _, svc := range services {
		out, err := n.runner.Run(ctx, "networksetup", "-getautoproxyurl", svc)
		if err != nil {
			return false, err
		}
		if m := autoProxyEnabled.FindStringSubmatch(out); m != nil && strings.TrimSpace(m[1]) != "No" {
			return true, nil
		}
	}
	return false, nil
}

func (n networkSetup) enable(ctx context.Context, pac string) error {
	services, err := n.activeNetworkServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect network services: %w", err)
	}
	for _, svc := range services {
		if _, err := n.runner.Run(ctx, "networksetup", "-setautoproxyurl", svc, pac); err != nil {
			return fmt.Errorf("failed to set PAC on %s: %w", svc, err)
		}
		if _, err := n.runner.Run(ctx, "networksetup", "-setautoproxystate", svc, "on"); err != nil {
			return fmt.Errorf("failed to enable PAC on %s: %w", svc, err)
		}
	}
	return nil
}

func (n networkSetup) disable(ctx context.Context) error {
	services, err := n.activeNetworkServices(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect network services: %w", err)
	}

	var firstErr error
	for _, svc := range services {
		if _, err := n.runner.Run(ctx, "networksetup", "-setautoproxystate", svc, "off"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
