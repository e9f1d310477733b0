// Package sampler feeds the host CPU temperature into the store as a
// PI_CPU reading on a fixed interval.
package sampler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("sampler")

// Sink receives sampled readings. The server implements it with the
// store mutex held.
type Sink interface {
	AddReading(schema.Reading)
}

// Config configures a Sampler.
type Config struct {
	// Sink receives each sample (required).
	Sink Sink

	// Path is the thermal zone file to read. Empty selects the
	// default.
	Path string

	// Interval is the sampling period. Zero selects the default.
	Interval time.Duration
}

// Sampler reads a sysfs thermal zone on a fixed interval.
type Sampler struct {
	sink     Sink
	path     string
	interval time.Duration
}

// New creates a Sampler.
func New(cfg *Config) *Sampler {
	path := cfg.Path
	if path == "" {
		path = defaults.DefaultSamplerPath
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaults.DefaultSamplerInterval
	}
	return &Sampler{sink: cfg.Sink, path: path, interval: interval}
}

// Run samples until ctx is cancelled. The first failed read logs a
// warning and stops the loop: hosts without the thermal zone stay
// silent instead of warning every interval.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info("sampling cpu temperature", "path", s.path, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			value, err := ReadCPUTemp(s.path)
			if err != nil {
				log.Warn("cpu temperature unreadable, sampler disabled",
					"path", s.path, "error", err)
				return nil
			}
			s.sink.AddReading(schema.Reading{
				Type:      schema.SensorTemperature,
				ID:        schema.SensorPICPU,
				Timestamp: time.Now().UTC(),
				Value:     value,
				Unit:      schema.UnitCelsius,
			})
		}
	}
}

// ReadCPUTemp reads a thermal zone file holding millidegrees Celsius
// and returns degrees.
func ReadCPUTemp(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	milli, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone value %q: %w", raw, err)
	}
	return milli / 1000.0, nil
}
