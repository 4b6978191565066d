package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir resolves the on-disk location for the event store.
// Order: DHANIVERSE_DATA_DIR, then ~/.dhaniverse/data, falling back to
// ./data when the home directory cannot be determined.
func DefaultDataDir() string {
	if v := os.Getenv("DHANIVERSE_DATA_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "data"
	}
	return filepath.Join(home, ".dhaniverse", "data")
}
