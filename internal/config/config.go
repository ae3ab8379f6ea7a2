// Package config holds the crawler configuration, its defaults, and the
// YAML file format. Command line flags are applied on top by the cli package.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// AppName names the config directory under the XDG config home.
const AppName = "origincrawl"

// Config captures everything needed to build a crawler.
type Config struct {
	Seed    string        `yaml:"seed"`
	Workers int           `yaml:"workers"`
	Store   string        `yaml:"store"`
	Stop    StopConfig    `yaml:"stop"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Render  RenderConfig  `yaml:"render"`
	Visited VisitedConfig `yaml:"visited"`
	Seeding SeedingConfig `yaml:"seeding"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// StopConfig selects the stop basis and its limit.
type StopConfig struct {
	Basis    types.StopBasis `yaml:"basis"`
	Duration Duration        `yaml:"duration"`
	MaxURLs  int             `yaml:"max_urls"`
}

// FetchConfig controls the HTTP fetcher.
type FetchConfig struct {
	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	UserAgent      string   `yaml:"user_agent"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	TLSProfile     string   `yaml:"tls_profile"`
	RotateHeaders  bool     `yaml:"rotate_headers"`

	Proxies          []string `yaml:"proxies"`
	ProxyMaxFailures int      `yaml:"proxy_max_failures"`
}

// RenderConfig controls optional headless Chrome rendering.
type RenderConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Timeout         Duration `yaml:"timeout"`
	DisableHeadless bool     `yaml:"disable_headless"`
}

// VisitedConfig selects the visited set implementation.
type VisitedConfig struct {
	Mode              string  `yaml:"mode"`
	Capacity          uint    `yaml:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// SeedingConfig enables sitemap discovery of extra starting URLs.
type SeedingConfig struct {
	Sitemap bool `yaml:"sitemap"`
	MaxURLs int  `yaml:"max_urls"`
}

// EngineConfig tunes the dispatch loop.
type EngineConfig struct {
	PollInterval     Duration `yaml:"poll_interval"`
	DrainTimeout     Duration `yaml:"drain_timeout"`
	ProgressInterval Duration `yaml:"progress_interval"`
	SampleSize       int      `yaml:"sample_size"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Workers: 5,
		Stop: StopConfig{
			Basis:    types.StopByTime,
			Duration: DurationFrom(10 * time.Second),
			MaxURLs:  100,
		},
		Fetch: FetchConfig{
			ConnectTimeout:   DurationFrom(3 * time.Second),
			ReadTimeout:      DurationFrom(30 * time.Second),
			UserAgent:        "origincrawl/1.0",
			MaxBodyBytes:     10 * 1024 * 1024,
			ProxyMaxFailures: 3,
		},
		Render: RenderConfig{
			Timeout: DurationFrom(30 * time.Second),
		},
		Visited: VisitedConfig{
			Mode:              "exact",
			Capacity:          1_000_000,
			FalsePositiveRate: 0.001,
		},
		Seeding: SeedingConfig{
			MaxURLs: 10000,
		},
		Engine: EngineConfig{
			PollInterval:     DurationFrom(time.Second),
			DrainTimeout:     DurationFrom(30 * time.Second),
			ProgressInterval: DurationFrom(5 * time.Second),
			SampleSize:       20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. It does not validate, since
// flags may still fill in required values such as the seed.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Normalize trims and lower-cases enumerated string fields.
func (c *Config) Normalize() {
	c.Seed = strings.TrimSpace(c.Seed)
	c.Store = strings.TrimSpace(c.Store)
	c.Stop.Basis = types.StopBasis(strings.ToLower(strings.TrimSpace(string(c.Stop.Basis))))
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Fetch.TLSProfile = strings.ToLower(strings.TrimSpace(c.Fetch.TLSProfile))
	c.Visited.Mode = strings.ToLower(strings.TrimSpace(c.Visited.Mode))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate enforces the invariants the crawler relies on.
func (c Config) Validate() error {
	if c.Seed == "" {
		return ErrNoSeed
	}

	switch c.Stop.Basis {
	case types.StopByTime:
		if c.Stop.Duration.Duration <= 0 {
			return fmt.Errorf("%w (got %v)", ErrInvalidDuration, c.Stop.Duration.Duration)
		}
	case types.StopByCount:
		if c.Stop.MaxURLs <= 0 {
			return fmt.Errorf("%w (got %d)", ErrInvalidMaxURLs, c.Stop.MaxURLs)
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidStopBasis, c.Stop.Basis)
	}

	if c.Workers <= 0 || c.Workers > 1000 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWorkers, c.Workers)
	}

	for name, d := range map[string]Duration{
		"fetch.connect_timeout": c.Fetch.ConnectTimeout,
		"fetch.read_timeout":    c.Fetch.ReadTimeout,
		"engine.poll_interval":  c.Engine.PollInterval,
		"engine.drain_timeout":  c.Engine.DrainTimeout,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: %s (got %v)", ErrInvalidTimeout, name, d.Duration)
		}
	}
	if c.Render.Enabled && c.Render.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: render.timeout (got %v)", ErrInvalidTimeout, c.Render.Timeout.Duration)
	}

	switch c.Visited.Mode {
	case "exact", "bloom":
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidVisitedMode, c.Visited.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidLogLevel, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidLogFormat, c.Logging.Format)
	}

	return nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/origincrawl/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// FindConfigFile returns configPath if given, otherwise the default path
// when a file exists there. An empty result means "use defaults".
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return configPath, nil
	}

	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", nil
}
