// Package paths resolves configuration file and workspace directory locations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative workspace directory name used when nothing overrides it.
const DefaultWorkspaceDirName = "ndr_workspace"

// Environment variable names for location overrides.
const (
	EnvConfigPath   = "NDRBATCH_CONFIG"
	EnvWorkspaceDir = "NDRBATCH_WORKSPACE"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/ndrbatch (fallback ~/.config/ndrbatch)
// macOS:   ~/Library/Application Support/ndrbatch
// Windows: %APPDATA%/ndrbatch
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "ndrbatch"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ndrbatch"), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "ndrbatch"), nil
	}
}

// ResolveConfigPath returns the configuration file path following the
// precedence chain: flag > NDRBATCH_CONFIG env > <DefaultConfigDir>/config.yaml.
//
// An empty return with nil error means no config file exists anywhere in the
// chain; callers fall back to built-in defaults.
func ResolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return filepath.Abs(env)
	}
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

// ResolveWorkspaceDir returns the workspace directory following the precedence
// chain: flag > config value > NDRBATCH_WORKSPACE env > $(CWD)/ndr_workspace.
func ResolveWorkspaceDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvWorkspaceDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultWorkspaceDirName), nil
}
