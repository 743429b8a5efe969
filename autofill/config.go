package autofill

import "github.com/infilloai/infillo-sub001/autofill/internal/config"

// Config is the engine configuration. See the internal config package for
// field documentation and defaults.
type Config = config.Config

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
