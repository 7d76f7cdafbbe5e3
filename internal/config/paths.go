package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/peersync/peersync/internal/utils"
)

const appDirName = "peersync"

// Subdirectories created under the config root.
var subDirs = []string{"profiles", "state", "logs"}

// DefaultConfigRoot resolves the platform config directory for the app.
func DefaultConfigRoot() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appDirName)
}

// EnsureConfigRoot creates the config root and its standard subdirectories.
// An empty dir selects the platform default.
func EnsureConfigRoot(dir string) (string, error) {
	root := dir
	if root == "" {
		root = DefaultConfigRoot()
	}
	root, err := utils.ResolvePath(root)
	if err != nil {
		return "", err
	}
	for _, sub := range subDirs {
		if err := utils.EnsureDir(filepath.Join(root, sub)); err != nil {
			return "", err
		}
	}
	return root, nil
}

func ProfilesDir(root string) string {
	return filepath.Join(root, "profiles")
}

func StateDir(root string) string {
	return filepath.Join(root, "state")
}

func LogsDir(root string) string {
	return filepath.Join(root, "logs")
}
