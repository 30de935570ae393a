package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
)

// Config is the YAML simulation configuration: logging, run control, the
// clock tree, and the optional trace and metrics sinks.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Run     RunConfig     `yaml:"run"`
	Clocks  ClocksConfig  `yaml:"clocks"`
	Trace   TraceConfig   `yaml:"trace"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RunConfig bounds the scheduler run.
type RunConfig struct {
	// MaxTicks bounds how far the scheduler advances; 0 means unbounded.
	MaxTicks uint64 `yaml:"max_ticks"`
	// Exacting advances through empty ticks one by one.
	Exacting bool `yaml:"exacting"`
}

// ClocksConfig describes the clock tree.
type ClocksConfig struct {
	// Root names the root clock; defaults to "root".
	Root string `yaml:"root"`
	// Domains are the non-root clocks, in creation order. Parents must
	// appear before children.
	Domains []ClockConfig `yaml:"domains"`
}

// ClockConfig describes one clock domain. Either the ratio pair or the
// frequency may be given, not both.
type ClockConfig struct {
	Name         string  `yaml:"name"`
	Parent       string  `yaml:"parent"`
	ParentRatio  uint64  `yaml:"parent_ratio"`
	ChildRatio   uint64  `yaml:"child_ratio"`
	FrequencyMhz float64 `yaml:"frequency_mhz"`
}

// TraceConfig enables the bbolt event trace.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info"},
		Clocks:  ClocksConfig{Root: "root"},
		Metrics: MetricsConfig{Listen: ":9464"},
		Trace:   TraceConfig{Path: "loom-trace.db"},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's internal consistency.
func (c *Config) Validate() error {
	if c.Clocks.Root == "" {
		return fmt.Errorf("clocks: root name must not be empty")
	}
	seen := map[string]bool{c.Clocks.Root: true}
	for i, d := range c.Clocks.Domains {
		if d.Name == "" {
			return fmt.Errorf("clocks.domains[%d]: name is required", i)
		}
		if d.Parent == "" {
			return fmt.Errorf("clock %q: parent is required", d.Name)
		}
		if !seen[d.Parent] {
			return fmt.Errorf("clock %q: parent %q is not defined before it", d.Name, d.Parent)
		}
		if seen[d.Name] {
			return fmt.Errorf("clock %q: defined twice", d.Name)
		}
		hasRatio := d.ParentRatio != 0 || d.ChildRatio != 0
		if hasRatio && d.FrequencyMhz != 0 {
			return fmt.Errorf("clock %q: ratio and frequency modes cannot be mixed", d.Name)
		}
		if d.FrequencyMhz < 0 {
			return fmt.Errorf("clock %q: frequency must be positive", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// LogInit applies the logging section to the global logger.
func (c *Config) LogInit() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	})
}

// BuildClockTree creates the configured clocks against the manager and
// returns them by name (the root included).
func (c *Config) BuildClockTree(mgr *clock.Manager) (map[string]*clock.Clock, error) {
	root, err := mgr.MakeRoot(c.Clocks.Root)
	if err != nil {
		return nil, err
	}
	clocks := map[string]*clock.Clock{c.Clocks.Root: root}
	for _, d := range c.Clocks.Domains {
		parent := clocks[d.Parent]
		var clk *clock.Clock
		if d.FrequencyMhz > 0 {
			clk, err = mgr.MakeClockFreq(d.Name, parent, d.FrequencyMhz)
		} else {
			pr, cr := d.ParentRatio, d.ChildRatio
			if pr == 0 {
				pr = 1
			}
			if cr == 0 {
				cr = 1
			}
			clk, err = mgr.MakeClock(d.Name, parent, pr, cr)
		}
		if err != nil {
			return nil, err
		}
		clocks[d.Name] = clk
	}
	return clocks, nil
}
