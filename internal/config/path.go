// Package config provides filesystem path helpers for configuration and
// data files.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading ~ and any $VAR environment references in a
// file path. A bare "~" resolves to the home directory itself.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	switch {
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}

// DatabasePath resolves the database location: the configured path when
// set, otherwise a file under the XDG data directory
// ($XDG_DATA_HOME/augur, defaulting to ~/.local/share/augur).
func DatabasePath(configured string) string {
	if configured != "" {
		return ExpandPath(configured)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "augur.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataDir, "augur", "augur.db")
}
