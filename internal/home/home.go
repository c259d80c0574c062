package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the astrofix home directory.
	DefaultDirName = ".astrofix"

	// SitesDirName is the subdirectory for deployed sites.
	SitesDirName = "sites"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the astrofix home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.astrofix).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// SitesPath returns the path to the deployed sites directory.
func (d *Dir) SitesPath() string {
	return filepath.Join(d.path, SitesDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create sites directory (this also creates the parent)
	if err := os.MkdirAll(d.SitesPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create sites directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// SitePath returns the directory of one deployed site.
func (d *Dir) SitePath(hash string) string {
	return filepath.Join(d.SitesPath(), hash)
}
