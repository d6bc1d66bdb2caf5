// CLAUDE:SUMMARY Defines the readerlabels YAML configuration (browser, readers, prefs, overlay, override, http, mcp) and its defaults.
// Package config handles readerlabels configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/readerlabels/overlay/internal/override"
)

// Config is the top-level configuration.
type Config struct {
	Browser  BrowserConfig    `yaml:"browser"`
	Readers  ReadersConfig    `yaml:"readers"`
	Prefs    PrefsConfig      `yaml:"prefs"`
	Overlay  OverlayConfig    `yaml:"overlay"`
	Override override.Options `yaml:"override"`
	HTTP     HTTPConfig       `yaml:"http"`
	MCP      MCPConfig        `yaml:"mcp"`
}

// BrowserConfig controls the Chrome instance hosting the reader.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Mode             string        `yaml:"mode"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Open             []string      `yaml:"open"` // reader URLs to open at startup
}

// ReadersConfig says which tabs are readers and where their view lives.
type ReadersConfig struct {
	URLPatterns    []string `yaml:"url_patterns"`
	FrameSelectors []string `yaml:"frame_selectors"`
}

// PrefsConfig locates the preference store.
type PrefsConfig struct {
	Path         string        `yaml:"path"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
	// Detector picks the change token: "updated_at" sees every write,
	// "data_version" only writes from other connections.
	Detector string `yaml:"detector"`
}

// OverlayConfig tunes the annotation loop.
type OverlayConfig struct {
	RescanInterval time.Duration `yaml:"rescan_interval"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	ApplyTimeout   time.Duration `yaml:"apply_timeout"`
}

// HTTPConfig enables the preferences API.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// MCPConfig enables the MCP server on stdio.
type MCPConfig struct {
	Stdio bool `yaml:"stdio"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if len(c.Readers.URLPatterns) == 0 {
		c.Readers.URLPatterns = []string{"*/reader/*", "*/viewer.html*"}
	}
	if c.Prefs.Path == "" {
		c.Prefs.Path = "readerlabels.db"
	}
	if c.Prefs.PollInterval <= 0 {
		c.Prefs.PollInterval = time.Second
	}
	if c.Prefs.Debounce <= 0 {
		c.Prefs.Debounce = 200 * time.Millisecond
	}
	if c.Prefs.Detector == "" {
		c.Prefs.Detector = "updated_at"
	}
	if c.Overlay.RescanInterval <= 0 {
		c.Overlay.RescanInterval = 2 * time.Second
	}
	if c.Overlay.ReadyTimeout <= 0 {
		c.Overlay.ReadyTimeout = 30 * time.Second
	}
	if c.Overlay.ApplyTimeout <= 0 {
		c.Overlay.ApplyTimeout = 15 * time.Second
	}
	c.Override = c.Override.WithDefaults()
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	switch c.Prefs.Detector {
	case "updated_at", "data_version":
	default:
		return fmt.Errorf("config: prefs.detector %q: want updated_at or data_version", c.Prefs.Detector)
	}
	for _, t := range c.Browser.ResourceBlocking {
		if t == "stylesheets" || t == "stylesheet" {
			return fmt.Errorf("config: browser.resource_blocking: stylesheets are needed to resolve swatch colours")
		}
	}
	return nil
}
