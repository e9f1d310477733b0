package format

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/xtxerr/sensorlog/internal/schema"
)

// textHeader is the column order of the text encoding.
var textHeader = []string{"sensor_type", "sensor_id", "timestamp", "reading", "unit"}

func serializeText(t schema.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(textHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range t.Rows() {
		record := []string{
			string(r.Type),
			string(r.ID),
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(r.Value, 'g', -1, 64),
			string(r.Unit),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeText decodes a csv payload. The text encoding carries no
// type metadata, so the decoded rows are re-validated against the
// schema before a table is returned.
func deserializeText(data []byte) (schema.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.Table{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return schema.Table{}, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return schema.Table{}, nil
	}
	if !slices.Equal(records[0], textHeader) {
		return schema.Table{}, fmt.Errorf("decode csv: unexpected header %v", records[0])
	}

	readings := make([]schema.Reading, 0, len(records)-1)
	for i, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339Nano, rec[2])
		if err != nil {
			return schema.Table{}, fmt.Errorf("decode csv row %d: %w", i+1, err)
		}
		value, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return schema.Table{}, fmt.Errorf("decode csv row %d: %w", i+1, err)
		}
		readings = append(readings, schema.Reading{
			Type:      schema.SensorType(rec[0]),
			ID:        schema.SensorID(rec[1]),
			Timestamp: ts,
			Value:     value,
			Unit:      schema.Unit(rec[4]),
		})
	}

	table := schema.FromReadings(readings)
	if err := table.Validate(); err != nil {
		return schema.Table{}, fmt.Errorf("decode csv: %w", err)
	}
	return table, nil
}
