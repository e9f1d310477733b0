// Package config provides configuration defaults and utilities
// for the sensorlog application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultForwardTimeout is the per-request timeout when forwarding
	// readings to registered downstream servers.
	// Override via config: forward.timeout
	DefaultForwardTimeout = 5 * time.Second

	// DefaultPeerTimeout is the timeout for archive fetches from an
	// upstream peer. Transfers larger than a few weeks of readings
	// should comfortably fit in this window.
	// Override via config: peer.timeout
	DefaultPeerTimeout = 10 * time.Second

	// DefaultPeerFormat is the serialization format requested from an
	// upstream peer.
	// Override via config: peer.format
	DefaultPeerFormat = "parquet"
)

// =============================================================================
// Buffer Defaults
// =============================================================================

const (
	// DefaultBufferCapacity is the size of the in-memory reading buffer.
	// When this many readings accumulate without a sync, the buffer
	// flushes them into the hot cache.
	// Override via config: buffer.capacity
	DefaultBufferCapacity = 10000
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultDataDir is the base directory for durable state.
	// Override via config: data_dir
	DefaultDataDir = "/var/lib/sensorlog"

	// DefaultArchiveDriver selects the archive backend.
	// One of: parquet, sqlite, memory.
	// Override via config: archive.driver
	DefaultArchiveDriver = "parquet"

	// DefaultArchiveSubdir is the directory under data_dir holding
	// one file per ISO-week shard (parquet driver).
	// Override via config: archive.dir
	DefaultArchiveSubdir = "archive"

	// DefaultSQLiteFile is the database file under data_dir used by
	// the sqlite driver.
	// Override via config: archive.sqlite_path
	DefaultSQLiteFile = "sensorlog.db"

	// DefaultFlushInterval is how often the hot cache is archived to
	// durable storage. Readings newer than the last flush live only in
	// memory until the next flush or shutdown.
	// Override via config: flush.interval
	DefaultFlushInterval = 6 * time.Hour
)

// =============================================================================
// Sampler Defaults
// =============================================================================

const (
	// DefaultSamplerInterval is how often the on-board CPU temperature
	// sensor is sampled.
	// Override via config: sampler.interval
	DefaultSamplerInterval = time.Minute

	// DefaultSamplerPath is the sysfs thermal zone read by the sampler.
	// The file holds the CPU temperature in millidegrees Celsius.
	// Override via config: sampler.path
	DefaultSamplerPath = "/sys/class/thermal/thermal_zone0/temp"
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultTailRows is the number of most recent readings returned by
	// the tail view.
	DefaultTailRows = 5

	// DefaultSummaryAccuracy is the relative accuracy of the quantile
	// sketches used for summary statistics. 0.01 means p99 within 1%.
	// Override via config: summary.accuracy
	DefaultSummaryAccuracy = 0.01
)
