package detection

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default tuning for the z-score detector.
const (
	DefaultWindowSize = 50
	DefaultMinSamples = 5
	DefaultThreshold  = 2.5
)

// Params are the knobs for one metric.
type Params struct {
	WindowSize int     `yaml:"window_size"`
	MinSamples int     `yaml:"min_samples"`
	Threshold  float64 `yaml:"threshold"`
}

// Config defines detector defaults and per-metric overrides.
type Config struct {
	Defaults Params            `yaml:"defaults"`
	Metrics  map[string]Params `yaml:"metrics"`
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		Defaults: Params{
			WindowSize: DefaultWindowSize,
			MinSamples: DefaultMinSamples,
			Threshold:  DefaultThreshold,
		},
	}
}

// LoadConfig reads detector tuning from a yaml file; an empty path yields
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Defaults = fillParams(cfg.Defaults)
	return cfg, cfg.validate()
}

// ParamsFor resolves tuning for a metric, merging overrides over defaults.
func (c Config) ParamsFor(metricName string) Params {
	base := fillParams(c.Defaults)
	if c.Metrics == nil {
		return base
	}
	override, ok := c.Metrics[metricName]
	if !ok {
		return base
	}
	if override.WindowSize > 0 {
		base.WindowSize = override.WindowSize
	}
	if override.MinSamples > 0 {
		base.MinSamples = override.MinSamples
	}
	if override.Threshold > 0 {
		base.Threshold = override.Threshold
	}
	return base
}

func (c Config) validate() error {
	params := fillParams(c.Defaults)
	if params.WindowSize < params.MinSamples {
		return errors.New("detection: window_size must be >= min_samples")
	}
	// Overrides merge over the defaults, so validate each metric's merged
	// result; a window below min_samples could never reach a verdict.
	for metricName := range c.Metrics {
		merged := c.ParamsFor(metricName)
		if merged.WindowSize < merged.MinSamples {
			return fmt.Errorf("detection: metric %q: window_size must be >= min_samples", metricName)
		}
	}
	return nil
}

func fillParams(p Params) Params {
	if p.WindowSize <= 0 {
		p.WindowSize = DefaultWindowSize
	}
	if p.MinSamples <= 0 {
		p.MinSamples = DefaultMinSamples
	}
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	return p
}
