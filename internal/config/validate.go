package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"":      true, // Empty defaults to info
	}
	if !validLevels[c.Log.Level] {
		errs = append(errs, errors.New("log.level must be one of: debug, info, warn, error"))
	}

	if c.Buffer.Capacity <= 0 {
		errs = append(errs, errors.New("buffer.capacity must be positive"))
	}

	if c.Flush.Interval <= 0 {
		errs = append(errs, errors.New("flush.interval must be positive"))
	}

	validDrivers := map[string]bool{
		"parquet": true,
		"sqlite":  true,
		"memory":  true,
	}
	if !validDrivers[c.Archive.Driver] {
		errs = append(errs, errors.New("archive.driver must be one of: parquet, sqlite, memory"))
	}

	if err := c.Peer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("peer: %w", err))
	}

	if err := c.Sampler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}

	if c.Forward.Timeout <= 0 {
		errs = append(errs, errors.New("forward.timeout must be positive"))
	}

	if c.Summary.Accuracy <= 0 || c.Summary.Accuracy >= 1 {
		errs = append(errs, errors.New("summary.accuracy must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the peer configuration. An empty URL disables the
// peer, in which case the remaining fields are ignored.
func (c *PeerConfig) Validate() error {
	if c.URL == "" {
		return nil
	}

	var errs []error

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q must be a valid http(s) URL", c.URL))
	}

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	validFormats := map[string]bool{
		"parquet": true,
		"csv":     true,
		"":        true, // Empty defaults to parquet
	}
	if !validFormats[c.Format] {
		errs = append(errs, errors.New("format must be one of: parquet, csv"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sampler configuration.
func (c *SamplerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}

	if c.Path == "" {
		errs = append(errs, errors.New("path is required when enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Archive.Driver == "parquet" {
		dirs = append(dirs, c.ArchiveDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
