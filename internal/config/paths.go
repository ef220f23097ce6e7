// Package config resolves the daemon's config directory and loads/saves
// the persisted configuration document described in spec §6.
package config

import (
	"os"
	"path/filepath"
)

const appDirName = "cacd"

// DevDirName is the directory used in CACD_DEV=1 mode, relative to the
// current working directory.
const DevDirName = ".cacd-dev"

// Dir resolves the config directory: CACD_CONFIG_DIR wins outright; else
// CACD_DEV=1 selects ./.cacd-dev; else the OS-standard per-user config dir
// (os.UserConfigDir()/cacd, i.e. ~/.config/cacd on POSIX, %APPDATA%/cacd on
// Windows).
func Dir() (string, error) {
	if d := os.Getenv("CACD_CONFIG_DIR"); d != "" {
		return d, nil
	}
	if os.Getenv("CACD_DEV") == "1" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, DevDirName), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// EnsureDir creates the config directory (and any parents) if missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// DocumentPath returns the path to the persisted config document.
func DocumentPath(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// PIDPath returns the path to the daemon PID file.
func PIDPath(dir string) string {
	return filepath.Join(dir, "daemon.pid")
}

// LogPath returns the path to the daemon's log file.
func LogPath(dir string) string {
	return filepath.Join(dir, "daemon.log")
}

// ProjectsDir returns CACD_PROJECTS_DIR, required for multi-project
// discovery mode. Empty string means discovery is disabled.
func ProjectsDir() string {
	return os.Getenv("CACD_PROJECTS_DIR")
}

// IsDev reports whether dev-mode behaviours (local config dir, hot
// reload cleanup) are enabled.
func IsDev() bool {
	return os.Getenv("CACD_DEV") == "1"
}

// PortOverride returns the CACD_PORT port override, or 0 if unset/invalid.
func PortOverride() int {
	v := os.Getenv("CACD_PORT")
	if v == "" {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// DefaultPort is used when neither CACD_PORT nor the config document
// names a port.
const DefaultPort = 7717

// ResolvePort applies the override precedence shared by the daemon and
// the CLI: CACD_PORT env var wins, else the persisted config's port,
// else DefaultPort.
func ResolvePort(cfg *Config) int {
	if p := PortOverride(); p != 0 {
		return p
	}
	if cfg != nil && cfg.Port != 0 {
		return cfg.Port
	}
	return DefaultPort
}
