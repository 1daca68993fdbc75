// Package dotdir manages the .chronicle/ and ~/.chronicle directories.
//
// A project directory holds config.toml, the world database and the
// checkpoints/ directory of snapshot bundles.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the project directory.
	dirName = ".chronicle"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .chronicle/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.chronicle/ dir
//  3. Home ~/.chronicle/ dir
//  4. If none found, attempt to create ~/.chronicle/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chronicle directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Local returns ./.chronicle under the working directory, creating it.
func (m *Manager) Local() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return m.Target(filepath.Join(cwd, dirName))
}

// localDirExists checks whether a .chronicle/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
