package datastore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/sensorlog/internal/schema"
)

// Summary aggregates one sensor's readings over a range. Quantiles are
// DDSketch estimates within the store's configured relative accuracy.
type Summary struct {
	Type  schema.SensorType `json:"sensor_type"`
	ID    schema.SensorID   `json:"sensor_id"`
	Unit  schema.Unit       `json:"unit"`
	Count int               `json:"count"`
	Min   float64           `json:"min"`
	Max   float64           `json:"max"`
	Mean  float64           `json:"mean"`
	P50   float64           `json:"p50"`
	P90   float64           `json:"p90"`
	P99   float64           `json:"p99"`
}

type sensorKey struct {
	typ schema.SensorType
	id  schema.SensorID
}

// Summarize returns one Summary per (sensor type, sensor id) pair seen
// in the half-open interval [start, end), sorted by type then id.
func (s *Store) Summarize(ctx context.Context, start, end *time.Time) ([]Summary, error) {
	table, err := s.Range(ctx, start, end)
	if err != nil {
		return nil, err
	}

	groups := make(map[sensorKey][]schema.Reading)
	for _, r := range table.Rows() {
		k := sensorKey{r.Type, r.ID}
		groups[k] = append(groups[k], r)
	}

	keys := make([]sensorKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ < keys[j].typ
		}
		return keys[i].id < keys[j].id
	})

	summaries := make([]Summary, 0, len(keys))
	for _, k := range keys {
		sum, err := summarizeGroup(k, groups[k], s.accuracy)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func summarizeGroup(k sensorKey, rows []schema.Reading, accuracy float64) (Summary, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return Summary{}, fmt.Errorf("build sketch: %w", err)
	}

	sum := Summary{
		Type:  k.typ,
		ID:    k.id,
		Unit:  rows[0].Unit,
		Count: len(rows),
		Min:   rows[0].Value,
		Max:   rows[0].Value,
	}
	total := 0.0
	for _, r := range rows {
		if err := sketch.Add(r.Value); err != nil {
			return Summary{}, fmt.Errorf("aggregate %s/%s: %w", k.typ, k.id, err)
		}
		if r.Value < sum.Min {
			sum.Min = r.Value
		}
		if r.Value > sum.Max {
			sum.Max = r.Value
		}
		total += r.Value
	}
	sum.Mean = total / float64(len(rows))

	quantiles, err := sketch.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
	if err != nil {
		return Summary{}, fmt.Errorf("quantiles for %s/%s: %w", k.typ, k.id, err)
	}
	sum.P50, sum.P90, sum.P99 = quantiles[0], quantiles[1], quantiles[2]
	return sum, nil
}
