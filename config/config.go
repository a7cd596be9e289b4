// Package config holds the run configuration of a simulation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
	"github.com/sarchlab/snoopsim/timing/latency"
)

// Config describes the simulated system.
type Config struct {
	Protocol string                `yaml:"protocol"`
	Cores    int                   `yaml:"cores"`
	Cache    cache.Config          `yaml:"cache"`
	Timing   latency.TimingConfig `yaml:"timing"`
}

// ValidProtocols is the set of recognized protocol names, lower-cased.
var ValidProtocols = map[string]bool{"mesi": true, "dragon": true}

// MaxCores bounds the number of simulated cores.
const MaxCores = 64

// DefaultConfig returns a four-core MESI system.
func DefaultConfig() *Config {
	return &Config{
		Protocol: coherence.NameMESI,
		Cores:    4,
		Cache:    cache.DefaultConfig(),
		Timing:   *latency.DefaultTimingConfig(),
	}
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return config, nil
}

// SaveConfig writes the configuration as YAML.
func (c *Config) SaveConfig(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serializing config: %w", err)
	}
	return data, nil
}

// Validate checks that the configuration describes a runnable system.
func (c *Config) Validate() error {
	if !ValidProtocols[strings.ToLower(c.Protocol)] {
		return fmt.Errorf("unknown protocol %q (valid: %s)",
			c.Protocol, strings.Join(coherence.Names(), ", "))
	}
	if c.Cores < 1 || c.Cores > MaxCores {
		return fmt.Errorf("cores must be between 1 and %d, got %d", MaxCores, c.Cores)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
