package fsutil

import (
	"os"
	"path/filepath"
)

// AppName is the name of the application used in paths.
const AppName = "fluffpkg"

// xdgDir returns $env, or home joined with fallback when env is unset.
func xdgDir(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// GetDataDir returns the directory installed packages live in:
// $XDG_DATA_HOME/fluffpkg, defaulting to ~/.local/share/fluffpkg.
func GetDataDir() (string, error) {
	base, err := xdgDir("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// GetCacheDir returns the download cache: $XDG_CACHE_HOME/fluffpkg.
func GetCacheDir() (string, error) {
	base, err := xdgDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// GetStateDir returns the directory holding the record store:
// $XDG_STATE_HOME/fluffpkg.
func GetStateDir() (string, error) {
	base, err := xdgDir("XDG_STATE_HOME", ".local", "state")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// GetConfigDir returns $XDG_CONFIG_HOME/fluffpkg.
func GetConfigDir() (string, error) {
	base, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// GetHooksDir returns the directory hook scripts are read from.
func GetHooksDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hooks"), nil
}

// GetApplicationsDir returns the directory desktop entries are linked into:
// $XDG_DATA_HOME/applications.
func GetApplicationsDir() (string, error) {
	base, err := xdgDir("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "applications"), nil
}

// GetBinDir returns the directory executables are linked into: ~/.local/bin.
func GetBinDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "bin"), nil
}

// EnsureDir creates a directory and its parents with DirModeDefault.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}
