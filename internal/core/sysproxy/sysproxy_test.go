package sysproxy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/grokify/mogo/log/slogutil"
	pkgerrors "hunter/pkg/errors"
)

// recordingRunner records every command and answers from a canned table
// keyed by the joined command line.
type recordingRunner struct {
	calls   []string
	answers map[string]string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	return r.answers[line], nil
}

func TestGnomeToggle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runner := &recordingRunner{answers: map[string]string{
		"gsettings get org.gnome.system.proxy mode": "'auto'",
	}}
	toggle := &Toggle{backend: desktopBackend("ubuntu:GNOME", runner), logger: slogutil.Null()}

	on, err := toggle.Enabled(ctx)
	if err != nil {
		t.Fatalf("Enabled() error: %v", err)
	}
	if !on {
		t.Fatalf("expected quoted 'auto' mode to read as enabled")
	}

	if err := toggle.Enable(ctx, "http://example.com/p.pac"); err != nil {
		t.Fatalf("Enable() error: %v", err)
	}
	if err := toggle.Disable(ctx); err != nil {
		t.Fatalf("Disable() error: %v", err)
	}

	want := []string{
		"gsettings get org.gnome.system.proxy mode",
		"gsettings set org.gnome.system.proxy mode auto",
		"gsettings set org.gnome.system.proxy autoconfig-url http://example.com/p.pac",
		"gsettings set org.gnome.system.proxy mode none",
	}
	if strings.Join(runner.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected calls:\n%s", strings.Join(runner.calls, "\n"))
	}
}

func TestKDEToggle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runner := &recordingRunner{answers: map[string]string{
		"kreadconfig5 --file kioslaverc --group Proxy Settings --key ProxyType": "0",
	}}
	toggle := &Toggle{backend: desktopBackend("KDE", runner), logger: slogutil.Null()}

	on, err := toggle.Enabled(ctx)
	if err != nil || on {
		t.Fatalf("expected disabled, got %v (%v)", on, err)
	}
	if err := toggle.Enable(ctx, "http://pac"); err != nil {
		t.Fatalf("Enable() error: %v", err)
	}
	last := runner.calls[len(runner.calls)-1]
	if last != "kwriteconfig5 --file kioslaverc --group Proxy Settings --key Proxy Config Script http://pac" {
		t.Fatalf("unexpected last call %q", last)
	}
}

func TestUnsupportedDesktop(t *testing.T) {
	t.Parallel()

	toggle := &Toggle{backend: desktopBackend("xfce", &recordingRunner{}), logger: slogutil.Null()}
	if err := toggle.Enable(context.Background(), "http://pac"); !errors.Is(err, pkgerrors.ErrUnsupportedDesktop) {
		t.Fatalf("expected ErrUnsupportedDesktop, got %v", err)
	}
}

func TestNetworkSetupAllServices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runner := &recordingRunner{answers: map[string]string{
		"networksetup -listallnetworkservices": "An asterisk (*) denotes that a network service is disabled.\nWi-Fi\n*Bluetooth PAN\nEthernet",
		"networksetup -getautoproxyurl Wi-Fi":    "URL: (null)\nEnabled: No",
		"networksetup -getautoproxyurl Ethernet": "URL: http://pac\nEnabled: Yes",
	}}
	toggle := &Toggle{backend: networkSetup{runner: runner}, logger: slogutil.Null()}

	on, err := toggle.Enabled(ctx)
	if err != nil {
		t.Fatalf("Enabled() error: %v", err)
	}
	if !on {
		t.Fatalf("expected Ethernet PAC to count as enabled")
	}

	runner.calls = nil
	if err := toggle.Disable(ctx); err != nil {
		t.Fatalf("Disable() error: %v", err)
	}
	want := []string{
		"networksetup -listallnetworkservices",
		"networksetup -setautoproxystate Wi-Fi off",
		"networksetup -setautoproxystate Ethernet off",
	}
	if strings.Join(runner.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected calls:\n%s", strings.Join(runner.calls, "\n"))
	}
}
