package cli

import (
	"os"
	"path/filepath"
)

// DataDir returns the per-user data directory of app, e.g.
// ~/.local/share/chatlogo on Linux. XDG_DATA_HOME wins when set.
func DataDir(app string) (string, error) {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, app), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", app), nil
}
