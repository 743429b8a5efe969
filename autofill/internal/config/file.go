// Package config handles autofill engine configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Page      PageConfig      `yaml:"page"`
	Service   ServiceConfig   `yaml:"service"`
	Detection DetectionConfig `yaml:"detection"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Sinks     []SinkConfig    `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"` // attach to an existing browser instead of launching
	Stealth          string   `yaml:"stealth"` // headless | headful
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// PageConfig defines the page the engine attaches to.
type PageConfig struct {
	URL            string   `yaml:"url"`
	BlockedOrigins []string `yaml:"blocked_origins"`
}

// ServiceConfig points at the inference service.
type ServiceConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds detect/refine calls. Zero disables the bound and relies
	// solely on the service responding or erroring.
	Timeout time.Duration `yaml:"timeout"`
}

// DetectionConfig controls scan scheduling.
type DetectionConfig struct {
	// InitialDelay postpones the first scan past page-load jank.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// DebounceWindow is how long mutations must quiesce before a rescan.
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// IndicatorMinVisible keeps the loading indicator up at least this long.
	IndicatorMinVisible time.Duration `yaml:"indicator_min_visible"`
}

// OverlayConfig controls widget visibility and placement.
type OverlayConfig struct {
	Trigger string  `yaml:"trigger"` // focus | hover | both
	Edge    string  `yaml:"edge"`    // leading | trailing
	Offset  float64 `yaml:"offset"`  // gap between field edge and widget, px
}

// SinkConfig defines an event output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the engine defaults.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Service.Timeout < 0 {
		c.Service.Timeout = 0
	}
	if c.Detection.InitialDelay <= 0 {
		c.Detection.InitialDelay = 1 * time.Second
	}
	if c.Detection.DebounceWindow <= 0 {
		c.Detection.DebounceWindow = 300 * time.Millisecond
	}
	if c.Detection.IndicatorMinVisible <= 0 {
		c.Detection.IndicatorMinVisible = 500 * time.Millisecond
	}
	switch c.Overlay.Trigger {
	case "focus", "hover", "both":
	default:
		c.Overlay.Trigger = "both"
	}
	switch c.Overlay.Edge {
	case "leading", "trailing":
	default:
		c.Overlay.Edge = "trailing"
	}
	if c.Overlay.Offset <= 0 {
		c.Overlay.Offset = 8
	}
}
