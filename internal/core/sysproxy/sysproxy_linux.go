package sysproxy

import "os"

func platformBackend(runner CommandRunner) backend {
	desktop := os.Getenv("XDG_SESSION_DESKTOP")
	if desktop == "" {
		desktop = os.Getenv("XDG_CURRENT_DESKTOP")
	}
	return desktopBackend(desktop, runner)
}
