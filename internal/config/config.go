// Package config holds the runtime settings of a lowzero process: logging, schema
// sources, per-type capacities, allocator bounds and the inspector address.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talaub/lowzero/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is loaded from YAML and then overridden by LOWZERO_* environment
// variables.
type Config struct {
	LogLevel       string   `yaml:"log_level"       env:"LOWZERO_LOG_LEVEL"`
	SchemaPaths    []string `yaml:"schemas"         env:"LOWZERO_SCHEMAS"         envSeparator:","`
	CapacitiesFile string   `yaml:"capacities_file" env:"LOWZERO_CAPACITIES_FILE"`
	InspectorAddr  string   `yaml:"inspector_addr"  env:"LOWZERO_INSPECTOR_ADDR"`
	ScenePath      string   `yaml:"scene"           env:"LOWZERO_SCENE"`
	MinPageSize    uint32   `yaml:"min_page_size"   env:"LOWZERO_MIN_PAGE_SIZE"`
	MaxPageSize    uint32   `yaml:"max_page_size"   env:"LOWZERO_MAX_PAGE_SIZE"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		InspectorAddr: "127.0.0.1:7420",
		MinPageSize:   8,
		MaxPageSize:   32,
	}
}

// Load reads path on top of DefaultConfig, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if c.MinPageSize == 0 || c.MinPageSize > c.MaxPageSize {
		errs = append(errs, fmt.Errorf("%w: page size bounds [%d, %d]", ErrInvalidConfig, c.MinPageSize, c.MaxPageSize))
	}
	if c.MaxPageSize&(c.MaxPageSize-1) != 0 || c.MinPageSize&(c.MinPageSize-1) != 0 {
		errs = append(errs, fmt.Errorf("%w: page size bounds must be powers of two", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}
