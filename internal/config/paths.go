package config

import (
	"os"
	"path/filepath"
	"strconv"
)

const appName = "alexandria"

// ConfigDir returns $XDG_CONFIG_HOME/alexandria.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/alexandria.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// CacheDir returns $XDG_CACHE_HOME/alexandria.
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// RuntimeDir returns $XDG_RUNTIME_DIR/alexandria, falling back to the
// system temp dir when no runtime dir is set.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName+"-"+currentUID())
}

func xdgDir(env, homeRel string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, homeRel, appName)
}

func currentUID() string {
	return strconv.Itoa(os.Getuid())
}
