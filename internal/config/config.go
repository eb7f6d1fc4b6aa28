package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/swpsco/nockpool-launcher/internal/logger"
)

// Built-in defaults matching the public nockpool release channel.
const (
	DefaultUpdateURL      = "https://api.github.com/repos/SWPSCO/nockpool-miner/releases/latest"
	DefaultUpdateInterval = 15 * time.Minute
	DefaultBinName        = "nockpool-miner"
)

// Config is the top-level TOML structure for the launcher.
type Config struct {
	// UpdateURL is the release manifest endpoint.
	UpdateURL string `toml:"update_url" mapstructure:"update_url"`
	// UpdateInterval is the background poll period.
	UpdateInterval time.Duration `toml:"update_interval" mapstructure:"update_interval"`
	// DataDir overrides the per-user install directory.
	DataDir string `toml:"data_dir" mapstructure:"data_dir"`
	// BinName is the miner binary name inside each version directory.
	BinName string `toml:"bin_name" mapstructure:"bin_name"`
	// Sentinel overrides the in-band restart request substring.
	Sentinel string `toml:"sentinel" mapstructure:"sentinel"`
	// PostHostProfile switches resolution to the richer POST variant that
	// sends the full host profile and honors the server's selected binary.
	PostHostProfile bool `toml:"post_host_profile" mapstructure:"post_host_profile"`
	// MetricsListen enables the Prometheus endpoint when non-empty,
	// e.g. ":9090".
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`
	// ServerListen enables the status HTTP server when non-empty.
	ServerListen string `toml:"server_listen" mapstructure:"server_listen"`
	// ServerBasePath prefixes the status routes, e.g. "/api".
	ServerBasePath string `toml:"server_base_path" mapstructure:"server_base_path"`
	// HistorySinks are DSNs for lifecycle event export
	// (sqlite/postgres/clickhouse/opensearch).
	HistorySinks []string `toml:"history_sinks" mapstructure:"history_sinks"`

	Log logger.Config `toml:"log" mapstructure:"log"`
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	return Config{
		UpdateURL:      DefaultUpdateURL,
		UpdateInterval: DefaultUpdateInterval,
		BinName:        DefaultBinName,
	}
}

// Load reads a TOML config file and fills unset fields with defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults fills unset fields with the built-in defaults.
func (c Config) WithDefaults() Config {
	if c.UpdateURL == "" {
		c.UpdateURL = DefaultUpdateURL
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.BinName == "" {
		c.BinName = DefaultBinName
	}
	return c
}
