package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the file form of every command's settings.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Propagate PropagateConfig `mapstructure:"propagate"`
	Layers    LayersConfig    `mapstructure:"layers"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PropagateConfig sizes the propagate benchmark: for each width and height a
// source feeds width chains of height computeds, each ending in an effect.
type PropagateConfig struct {
	Widths     []int `mapstructure:"widths"`
	Heights    []int `mapstructure:"heights"`
	Iterations int   `mapstructure:"iterations"`
}

type LayersConfig struct {
	Repeats int `mapstructure:"repeats"`
	// Tests restricts the run to the named test configs.
	Tests []string `mapstructure:"tests"`
	// Scale multiplies every test's iteration count.
	Scale float64 `mapstructure:"scale"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
	// StateDir persists signals to files; empty keeps them in memory.
	StateDir string `mapstructure:"state_dir"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Propagate: PropagateConfig{
			Widths:     []int{1, 10, 100},
			Heights:    []int{1, 10, 100},
			Iterations: 100,
		},
		Layers: LayersConfig{
			Repeats: 5,
			Scale:   1,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := defaultConfig()

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("propagate.widths", defaults.Propagate.Widths)
	v.SetDefault("propagate.heights", defaults.Propagate.Heights)
	v.SetDefault("propagate.iterations", defaults.Propagate.Iterations)

	v.SetDefault("layers.repeats", defaults.Layers.Repeats)
	v.SetDefault("layers.tests", defaults.Layers.Tests)
	v.SetDefault("layers.scale", defaults.Layers.Scale)

	v.SetDefault("serve.addr", defaults.Serve.Addr)
	v.SetDefault("serve.state_dir", defaults.Serve.StateDir)
}

// loadConfig reads path, if any, over the defaults. SIGNALBENCH_* environment
// variables override file values, e.g. SIGNALBENCH_SERVE_ADDR.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("signalbench")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Propagate.Widths) == 0 || len(c.Propagate.Heights) == 0 {
		errs = append(errs, errors.New("propagate: widths and heights must not be empty"))
	}
	for _, n := range append(append([]int{}, c.Propagate.Widths...), c.Propagate.Heights...) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("propagate: sizes must be positive, got %d", n))
			break
		}
	}
	if c.Propagate.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("propagate: iterations must be positive, got %d", c.Propagate.Iterations))
	}
	if c.Layers.Repeats <= 0 {
		errs = append(errs, fmt.Errorf("layers: repeats must be positive, got %d", c.Layers.Repeats))
	}
	if c.Layers.Scale <= 0 {
		errs = append(errs, fmt.Errorf("layers: scale must be positive, got %g", c.Layers.Scale))
	}
	if c.Serve.Addr == "" {
		errs = append(errs, errors.New("serve: addr must not be empty"))
	}
	return errors.Join(errs...)
}
