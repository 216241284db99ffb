package fileutil

import (
	"os"
	"path/filepath"
)

// DataDir returns $XDG_DATA_HOME/sketchkit, or $HOME/.local/share/sketchkit, or /tmp/sketchkit/data
func DataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir != "" {
		dir = filepath.Join(dir, "sketchkit")
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share", "sketchkit")
		} else {
			dir = filepath.Join(os.TempDir(), "sketchkit", "data")
		}
	}
	return dir
}
