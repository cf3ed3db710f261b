// Package sqlitepath resolves where transcript databases live.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvVar overrides the default database location.
const EnvVar = "PICOCHAT_SQLITE"

// ResolveSQLitePath returns flagValue when set, then $PICOCHAT_SQLITE, then
// ~/.picochat/tapes.sqlite (creating the directory).
func ResolveSQLitePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}

	dir := filepath.Join(home, ".picochat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}

	return filepath.Join(dir, "tapes.sqlite"), nil
}
