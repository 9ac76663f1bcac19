package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	MPD          MPDConfig          `toml:"mpd"`
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Materializer MaterializerConfig `toml:"materializer"`
	Log          LogConfig          `toml:"log"`
}

// MPDConfig contains the music server connection settings.
type MPDConfig struct {
	Network           string  `toml:"network"`
	Address           string  `toml:"address"`
	Password          string  `toml:"password"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains control server settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SchedulerConfig controls catch-up and concurrency of refresh cycles.
type SchedulerConfig struct {
	CatchUp       bool `toml:"catch_up"`
	MaxConcurrent int  `toml:"max_concurrent"`
}

type MaterializerConfig struct {
	Verify bool `toml:"verify"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads a TOML configuration file from the specified path and
// overlays it on [DefaultConfig], so omitted keys keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	switch c.MPD.Network {
	case "tcp", "unix":
	default:
		return fmt.Errorf("%w: mpd.network must be tcp or unix, got %q", ErrInvalidConfig, c.MPD.Network)
	}
	if c.MPD.Address == "" {
		return fmt.Errorf("%w: mpd.address is required", ErrInvalidConfig)
	}
	if c.MPD.RequestsPerSecond < 0 || c.MPD.Burst < 0 {
		return fmt.Errorf("%w: mpd rate limits must not be negative", ErrInvalidConfig)
	}
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("%w: scheduler.max_concurrent must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
