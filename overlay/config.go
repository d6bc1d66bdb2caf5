package overlay

import (
	"github.com/hazyhaar/readerlabels/overlay/internal/config"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
)

// FileConfig is the readerlabels daemon configuration. Re-exported from internal.
type FileConfig = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// ReadersConfig selects reader tabs and their views.
type ReadersConfig = config.ReadersConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *FileConfig {
	return config.Default()
}

// PrefsDB is the SQLite preference store.
type PrefsDB = prefs.SQLite

// OpenPrefs opens (creating if needed) the preference database at path.
func OpenPrefs(path string) (*PrefsDB, error) {
	return prefs.Open(path)
}
