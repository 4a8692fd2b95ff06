package cli

import (
	"os"
	"path/filepath"
)

// Paths locates an app's files under ~/.giztoy/<app>.
type Paths struct {
	// AppName is the application name
	AppName string

	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates a new Paths instance for the given app
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName: appName,
		HomeDir: home,
	}, nil
}

// AppDir returns the app-specific directory (~/.giztoy/<app>)
func (p *Paths) AppDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir, p.AppName)
}

// ConfigFile returns the config file path (~/.giztoy/<app>/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// RecordingsDir returns the default session log directory
// (~/.giztoy/<app>/recordings)
func (p *Paths) RecordingsDir() string {
	return filepath.Join(p.AppDir(), "recordings")
}

// RecordingPath returns a path within the recordings directory
func (p *Paths) RecordingPath(name string) string {
	return filepath.Join(p.RecordingsDir(), name)
}
