// Package format implements the serialization formats for reading
// tables: a columnar encoding (parquet) for archive shards and peer
// transfer, and a text encoding (csv) for human inspection.
//
// Format is a closed enum. Every operation dispatches on the tag, so
// adding a format means extending each switch, not implementing an
// interface.
package format

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xtxerr/sensorlog/internal/schema"
)

// Format identifies a serialization format.
type Format int

const (
	// Columnar is the parquet encoding. It preserves types, so a round
	// trip needs only the standard repair pass (retype, dedup, sort).
	Columnar Format = iota

	// Text is the csv encoding. It carries no type metadata, so a
	// round trip re-validates the decoded rows against the schema.
	Text
)

// ErrUnknownFormat is returned for format names outside the enum.
var ErrUnknownFormat = errors.New("unknown format")

// ParseFormat maps a format name to its tag.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "parquet", "columnar":
		return Columnar, nil
	case "csv", "text":
		return Text, nil
	default:
		return Columnar, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ID returns the canonical format name used in URLs and file names.
func (f Format) ID() string {
	switch f {
	case Text:
		return "csv"
	default:
		return "parquet"
	}
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return f.ID()
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	switch f {
	case Text:
		return ".csv"
	default:
		return ".parquet"
	}
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case Text:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Serialize encodes a table.
func (f Format) Serialize(t schema.Table) ([]byte, error) {
	switch f {
	case Text:
		return serializeText(t)
	default:
		return serializeColumnar(t)
	}
}

// Deserialize decodes a table.
func (f Format) Deserialize(data []byte) (schema.Table, error) {
	switch f {
	case Text:
		return deserializeText(data)
	default:
		return deserializeColumnar(data)
	}
}

// Write serializes a table to a file, creating parent directories.
func (f Format) Write(t schema.Table, path string) error {
	data, err := f.Serialize(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads and deserializes a table from a file.
func (f Format) Load(path string) (schema.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	return f.Deserialize(data)
}
