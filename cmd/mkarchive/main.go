// mkarchive generates a synthetic sensor archive for development and
// testing. Every tick emits one reading per legal sensor combination.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/schema"
)

func main() {
	dir := flag.String("dir", "archive", "output archive directory")
	count := flag.Int("count", 360, "number of ticks to generate")
	interval := flag.Duration("interval", time.Second, "spacing between ticks")
	start := flag.String("start", "", "RFC3339 timestamp of the first tick (default now)")
	value := flag.Float64("value", 34.0, "reading value for every sensor")
	flag.Parse()

	ts := time.Now().UTC()
	if *start != "" {
		parsed, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			log.Fatalf("Parse start timestamp: %v", err)
		}
		ts = parsed.UTC()
	}

	readings := make([]schema.Reading, 0, *count*4)
	for i := 0; i < *count; i++ {
		readings = append(readings, tick(ts, *value)...)
		ts = ts.Add(*interval)
	}

	table := schema.FromReadings(readings)
	if err := table.Validate(); err != nil {
		log.Fatalf("Generated readings failed validation: %v", err)
	}

	backend, err := archive.NewDirBackend(*dir)
	if err != nil {
		log.Fatalf("Open archive directory: %v", err)
	}
	arch := archive.New(backend)
	if err := arch.Save(table); err != nil {
		log.Fatalf("Save archive: %v", err)
	}

	fmt.Printf("wrote %d readings across %d shards to %s\n",
		table.Len(), len(arch.Keys()), *dir)
}

// tick returns one reading per legal (type, id) combination at ts.
func tick(ts time.Time, value float64) []schema.Reading {
	var readings []schema.Reading
	for _, typ := range schema.SensorTypes() {
		for _, id := range schema.SensorIDs() {
			if !schema.ValidPair(typ, id) {
				continue
			}
			readings = append(readings, schema.Reading{
				Type:      typ,
				ID:        id,
				Timestamp: ts,
				Value:     value,
				Unit:      schema.UnitFor(typ),
			})
		}
	}
	return readings
}
