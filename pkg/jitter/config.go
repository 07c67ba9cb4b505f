package jitter

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid jitter buffer config")

// Config holds the tunables of one jitter buffer. A running sub-buffer keeps
// the copy it started with; changes apply to sub-buffers started later.
type Config struct {
	// BdStart is the depth (in frames) a starting sub-buffer needs before
	// playout begins.
	BdStart uint16 `yaml:"bd_start"`
	// BdHiwat is the depth above which thinning kicks in.
	BdHiwat uint16 `yaml:"bd_hiwat"`
	// ThinningInt drops one frame in every ThinningInt while above BdHiwat.
	ThinningInt uint16 `yaml:"thinning_int"`
	// MaxFutureSec bounds how far ahead of the write head a timestamp may be.
	MaxFutureSec uint16 `yaml:"max_future_sec"`
	// StartMinDelta and StartMaxDelta are in milliseconds, 0 disables.
	StartMinDelta uint16 `yaml:"start_min_delta"`
	StartMaxDelta uint16 `yaml:"start_max_delta"`
}

func DefaultConfig() Config {
	return Config{
		BdStart:      2,
		BdHiwat:      3,
		ThinningInt:  17,
		MaxFutureSec: 10,
	}
}

func (c Config) Validate() error {
	if c.BdStart < 2 {
		return fmt.Errorf("%w: bd_start %d is below 2", ErrInvalidConfig, c.BdStart)
	}
	if c.BdHiwat < c.BdStart {
		return fmt.Errorf("%w: bd_hiwat %d is below bd_start %d", ErrInvalidConfig, c.BdHiwat, c.BdStart)
	}
	if c.ThinningInt < 2 {
		return fmt.Errorf("%w: thinning_int %d is below 2", ErrInvalidConfig, c.ThinningInt)
	}
	if c.MaxFutureSec < 1 {
		return fmt.Errorf("%w: max_future_sec must be at least 1", ErrInvalidConfig)
	}
	if c.StartMaxDelta != 0 && c.StartMaxDelta < c.StartMinDelta {
		return fmt.Errorf("%w: start_max_delta %d is below start_min_delta %d",
			ErrInvalidConfig, c.StartMaxDelta, c.StartMinDelta)
	}
	return nil
}

// UnmarshalYAML fills unset fields from DefaultConfig.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	tmp := plain(DefaultConfig())
	if err := node.Decode(&tmp); err != nil {
		return err
	}
	*c = Config(tmp)
	return nil
}

// LoadConfig reads a YAML document holding a Config and validates it.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read jitter config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse jitter config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
