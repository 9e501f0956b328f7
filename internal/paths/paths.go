package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

const appName = "hunter"

// File names inside the hunter directories.
const (
	TrojanConfigFile = "config.json"
	OutLogFile       = "hunter-out.log"
	ErrorLogFile     = "hunter-error.log"
	DatabaseFile     = "hunter.db"
)

// HomeDir returns the real user's home directory, even when running under sudo,
// so that the trojan-go config, logs and database stay in one place regardless
// of privilege level.
func HomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		u, err := user.Lookup(sudoUser)
		if err == nil {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// RealUser returns the UID and GID of the invoking user when running under
// sudo (via SUDO_UID / SUDO_GID). Returns ok=false when not under sudo.
func RealUser() (uid, gid int, ok bool) {
	sudoUID := os.Getenv("SUDO_UID")
	if sudoUID == "" {
		return 0, 0, false
	}
	u, err := strconv.ParseInt(sudoUID, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	var g int64
	if sudoGID := os.Getenv("SUDO_GID"); sudoGID != "" {
		g, _ = strconv.ParseInt(sudoGID, 10, 64)
	}
	return int(u), int(g), true
}

// ChownToRealUser hands path back to the invoking user under sudo.
// It is a no-op otherwise.
func ChownToRealUser(path string) {
	if uid, gid, ok := RealUser(); ok {
		os.Chown(path, uid, gid)
	}
}

func ensure(parts ...string) (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(append([]string{home}, parts...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	ChownToRealUser(dir)
	return dir, nil
}

// CacheDir returns ~/.cache/hunter, where the trojan-go executable lives.
func CacheDir() (string, error) {
	return ensure(".cache", appName)
}

// DataDir returns ~/.local/share/hunter, which holds the database.
func DataDir() (string, error) {
	return ensure(".local", "share", appName)
}

// ConfigDir returns ~/.config/hunter, which holds the trojan-go client
// config and its log files.
func ConfigDir() (string, error) {
	return ensure(".config", appName)
}
