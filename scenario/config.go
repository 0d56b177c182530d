package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid scenario config")

// Config describes the load put on a lock.
type Config struct {
	Readers          int           `yaml:"readers"`
	Writers          int           `yaml:"writers"`
	Duration         time.Duration `yaml:"duration"`
	Hold             time.Duration `yaml:"hold"`
	WriterPreference bool          `yaml:"writer_preference"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

func DefaultConfig() Config {
	return Config{
		Readers:  4,
		Writers:  1,
		Duration: 2 * time.Second,
		Hold:     time.Millisecond,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
// An empty file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Readers < 0:
		return fmt.Errorf("%w: readers must not be negative, got %d", ErrInvalidConfig, c.Readers)
	case c.Writers < 0:
		return fmt.Errorf("%w: writers must not be negative, got %d", ErrInvalidConfig, c.Writers)
	case c.Readers+c.Writers == 0:
		return fmt.Errorf("%w: nothing to run", ErrInvalidConfig)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfig, c.Duration)
	case c.Hold < 0:
		return fmt.Errorf("%w: hold must not be negative, got %s", ErrInvalidConfig, c.Hold)
	}
	return nil
}
