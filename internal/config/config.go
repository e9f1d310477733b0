// Package config defines the sensorlog daemon configuration.
//
// Configuration is loaded from a YAML file on top of the documented
// defaults, so a partial file only overrides the keys it names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/sensorlog/config"
)

// Config is the root configuration for the sensorlog daemon.
type Config struct {
	// DataDir is the base directory for durable state.
	DataDir string `yaml:"data_dir"`

	// Listen is the HTTP listen address (host:port).
	Listen string `yaml:"listen"`

	Log     LogConfig     `yaml:"log"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Flush   FlushConfig   `yaml:"flush"`
	Archive ArchiveConfig `yaml:"archive"`
	Peer    PeerConfig    `yaml:"peer"`
	Sampler SamplerConfig `yaml:"sampler"`
	Forward ForwardConfig `yaml:"forward"`
	Summary SummaryConfig `yaml:"summary"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output from human-readable text to JSON.
	JSON bool `yaml:"json"`
}

// BufferConfig controls the in-memory reading buffer.
type BufferConfig struct {
	// Capacity is the ring size; reaching it triggers a sync into the
	// hot cache.
	Capacity int `yaml:"capacity"`
}

// FlushConfig controls periodic archiving of the hot cache.
type FlushConfig struct {
	// Interval between automatic flushes to durable storage.
	// Format: 30m, 6h
	Interval Duration `yaml:"interval"`
}

// ArchiveConfig selects and configures the durable archive backend.
type ArchiveConfig struct {
	// Driver is one of: parquet, sqlite, memory.
	Driver string `yaml:"driver"`

	// Dir overrides the shard directory for the parquet driver.
	// Defaults to <data_dir>/archive.
	Dir string `yaml:"dir"`

	// SQLitePath overrides the database file for the sqlite driver.
	// Defaults to <data_dir>/sensorlog.db.
	SQLitePath string `yaml:"sqlite_path"`
}

// PeerConfig configures an optional upstream peer. When URL is set the
// store fetches archive data from the peer instead of local storage.
type PeerConfig struct {
	// URL is the base URL of the upstream sensorlog server.
	URL string `yaml:"url"`

	// Timeout bounds each peer request.
	// Format: 5s, 1m
	Timeout Duration `yaml:"timeout"`

	// Format is the serialization format requested from the peer:
	// parquet or csv.
	Format string `yaml:"format"`
}

// SamplerConfig controls the on-board CPU temperature sampler.
type SamplerConfig struct {
	// Enabled turns the sampler on.
	Enabled bool `yaml:"enabled"`

	// Interval between samples.
	// Format: 10s, 1m
	Interval Duration `yaml:"interval"`

	// Path is the sysfs file holding millidegrees Celsius.
	Path string `yaml:"path"`
}

// ForwardConfig controls forwarding to registered downstream servers.
type ForwardConfig struct {
	// Timeout bounds each forwarded request.
	// Format: 1s, 10s
	Timeout Duration `yaml:"timeout"`
}

// SummaryConfig controls summary statistics.
type SummaryConfig struct {
	// Accuracy is the relative accuracy of quantile sketches (0..1).
	Accuracy float64 `yaml:"accuracy"`
}

// Duration is a time.Duration that can be unmarshaled from YAML,
// either as a duration string ("30m") or as an integer second count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaults.DefaultDataDir,
		Listen:  defaults.DefaultListenAddress,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Buffer: BufferConfig{
			Capacity: defaults.DefaultBufferCapacity,
		},
		Flush: FlushConfig{
			Interval: Duration(defaults.DefaultFlushInterval),
		},
		Archive: ArchiveConfig{
			Driver: defaults.DefaultArchiveDriver,
		},
		Peer: PeerConfig{
			Timeout: Duration(defaults.DefaultPeerTimeout),
			Format:  defaults.DefaultPeerFormat,
		},
		Sampler: SamplerConfig{
			Enabled:  false,
			Interval: Duration(defaults.DefaultSamplerInterval),
			Path:     defaults.DefaultSamplerPath,
		},
		Forward: ForwardConfig{
			Timeout: Duration(defaults.DefaultForwardTimeout),
		},
		Summary: SummaryConfig{
			Accuracy: defaults.DefaultSummaryAccuracy,
		},
	}
}

// ArchiveDir returns the shard directory for the parquet driver.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.DataDir, defaults.DefaultArchiveSubdir)
}

// SQLitePath returns the database file for the sqlite driver.
func (c *Config) SQLitePath() string {
	if c.Archive.SQLitePath != "" {
		return c.Archive.SQLitePath
	}
	return filepath.Join(c.DataDir, defaults.DefaultSQLiteFile)
}
