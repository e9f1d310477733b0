package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/sensorlog/internal/schema"
)

// readingRow is the columnar row shape. Timestamps are stored as Unix
// nanoseconds so sub-second precision survives the round trip.
type readingRow struct {
	SensorType string  `parquet:"sensor_type,zstd"`
	SensorID   string  `parquet:"sensor_id,zstd"`
	Timestamp  int64   `parquet:"timestamp"`
	Reading    float64 `parquet:"reading"`
	Unit       string  `parquet:"unit,zstd"`
}

func toRow(r schema.Reading) readingRow {
	return readingRow{
		SensorType: string(r.Type),
		SensorID:   string(r.ID),
		Timestamp:  r.Timestamp.UnixNano(),
		Reading:    r.Value,
		Unit:       string(r.Unit),
	}
}

func fromRow(row readingRow) schema.Reading {
	return schema.Reading{
		Type:      schema.SensorType(row.SensorType),
		ID:        schema.SensorID(row.SensorID),
		Timestamp: time.Unix(0, row.Timestamp).UTC(),
		Value:     row.Reading,
		Unit:      schema.Unit(row.Unit),
	}
}

func serializeColumnar(t schema.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[readingRow](&buf, parquet.Compression(&parquet.Zstd))

	if t.Len() > 0 {
		rows := make([]readingRow, t.Len())
		for i, r := range t.Rows() {
			rows[i] = toRow(r)
		}
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeColumnar decodes a parquet payload. The parquet reader
// panics on malformed input, so the panic is converted into an error.
// Decoded rows go through the repair pass in schema.FromReadings.
func deserializeColumnar(data []byte) (t schema.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = schema.Table{}
			err = fmt.Errorf("decode parquet: %v", r)
		}
	}()

	pr := parquet.NewGenericReader[readingRow](bytes.NewReader(data))
	defer pr.Close()

	n := pr.NumRows()
	if n == 0 {
		return schema.Table{}, nil
	}

	rows := make([]readingRow, n)
	read, err := pr.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return schema.Table{}, fmt.Errorf("read parquet rows: %w", err)
	}

	readings := make([]schema.Reading, read)
	for i := 0; i < read; i++ {
		readings[i] = fromRow(rows[i])
	}
	return schema.FromReadings(readings), nil
}
