// Package appdir locates the inferstream configuration directory.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv overrides the configuration directory.
	DirEnv = "INFERSTREAM_DIR"

	// ConfigFileName is the name of the configuration file inside Dir.
	ConfigFileName = "config.yaml"

	appName = "inferstream"
)

var (
	mu        sync.RWMutex
	cachedDir string
)

// Dir returns the configuration directory:
//  1. $INFERSTREAM_DIR, if set
//  2. macOS: ~/Library/Application Support/inferstream
//  3. Windows: %APPDATA%\inferstream
//  4. elsewhere: $XDG_CONFIG_HOME/inferstream or ~/.config/inferstream
//
// The result is cached. Dir does not create the directory; see EnsureDir.
func Dir() (string, error) {
	mu.RLock()
	dir := cachedDir
	mu.RUnlock()
	if dir != "" {
		return dir, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if cachedDir != "" {
		return cachedDir, nil
	}
	dir, err := resolveDir()
	if err != nil {
		return "", err
	}
	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if env := os.Getenv(DirEnv); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, appName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, appName), nil
	}
}

// EnsureDir creates the configuration directory if needed and returns it.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// ResetCache forgets the resolved directory. Used by tests.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
