package sysproxy

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "hunter/pkg/errors"
)

const (
	gnomeProxySchema = "org.gnome.system.proxy"
	kdeProxyGroup    = "Proxy Settings"
)

// gnome drives the GNOME proxy settings through gsettings.
type gnome struct {
	runner CommandRunner
}

func (g gnome) enabled(ctx context.Context) (bool, error) {
	mode, err := g.runner.Run(ctx, "gsettings", "get", gnomeProxySchema, "mode")
	if err != nil {
		return false, err
	}
	return strings.Trim(mode, `'"`) == "auto", nil
}

func (g gnome) enable(ctx context.Context, pac string) error {
	commands := [][]string{
		{"set", gnomeProxySchema, "mode", "auto"},
		{"set", gnomeProxySchema, "autoconfig-url", pac},
	}
	for _, args := range commands {
		if _, err := g.runner.Run(ctx, "gsettings", args...); err != nil {
			return err
		}
	}
	return nil
}

func (g gnome) disable(ctx context.Context) error {
	_, err := g.runner.Run(ctx, "gsettings", "set", gnomeProxySchema, "mode", "none")
	return err
}

// kde drives the KDE proxy settings through kioslaverc.
type kde struct {
	runner CommandRunner
}

func (k kde) key(key string) []string {
	return []string{"--file", "kioslaverc", "--group", kdeProxyGroup, "--key", key}
}

func (k kde) enabled(ctx context.Context) (bool, error) {
	proxyType, err := k.runner.Run(ctx, "kreadconfig5", k.key("ProxyType")...)
	if err != nil {
		return false, err
	}
	return proxyType == "2", nil
}

func (k kde) enable(ctx context.Context, pac string) error {
	if _, err := k.runner.Run(ctx, "kwriteconfig5", append(k.key("ProxyType"), "2")...); err != nil {
		return err
	}
	_, err := k.runner.Run(ctx, "kwriteconfig5", append(k.key("Proxy Config Script"), pac)...)
	return err
}

func (k kde) disable(ctx context.Context) error {
	_, err := k.runner.Run(ctx, "kwriteconfig5", append(k.key("ProxyType"), "0")...)
	return err
}

// desktopBackend picks the backend for an XDG desktop name.
func desktopBackend(desktop string, runner CommandRunner) backend {
	d := strings.ToLower(desktop)
	switch {
	case strings.Contains(d, "kde") || strings.Contains(d, "plasma"):
		return kde{runner: runner}
	case strings.Contains(d, "gnome") || strings.Contains(d, "ubuntu") ||
		strings.Contains(d, "unity") || strings.Contains(d, "cinnamon"):
		return gnome{runner: runner}
	default:
		return unsupported{err: fmt.Errorf("%w: %q", pkgerrors.ErrUnsupportedDesktop, desktop)}
	}
}

// unsupported fails every operation.
type unsupported struct {
	err error
}

func (u unsupported) enabled(ctx context.Context) (bool, error)   { return false, u.err }
func (u unsupported) enable(ctx context.Context, pac string) error { return u.err }
func (u unsupported) disable(ctx context.Context) error            { return u.err }
