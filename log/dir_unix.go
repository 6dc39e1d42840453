//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultDir follows the platform convention for per-user log files:
// ~/Library/Logs on macOS and $XDG_STATE_HOME elsewhere.
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "parla"), nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "parla"), nil
}
