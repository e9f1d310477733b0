package schema

import (
	"errors"
	"testing"
	"time"
)

var tableBase = time.Date(2024, 2, 12, 8, 0, 0, 0, time.UTC)

func tempAt(offset time.Duration, value float64) Reading {
	return Reading{SensorTemperature, SensorDHT11, tableBase.Add(offset), value, UnitCelsius}
}

func TestFromReadingsSortsAndDedups(t *testing.T) {
	rows := []Reading{
		tempAt(2*time.Second, 21.0),
		tempAt(0, 20.0),
		tempAt(1*time.Second, 20.5),
		tempAt(0, 20.0), // duplicate key
	}

	table := FromReadings(rows)

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	for i := 1; i < table.Len(); i++ {
		prev, cur := table.Rows()[i-1], table.Rows()[i]
		if cur.Timestamp.Before(prev.Timestamp) {
			t.Errorf("rows out of order at %d: %v before %v", i, cur.Timestamp, prev.Timestamp)
		}
	}
}

func TestFromReadingsTieBreak(t *testing.T) {
	rows := []Reading{
		{SensorTemperature, SensorPICPU, tableBase, 47.0, UnitCelsius},
		{SensorHumidity, SensorDHT11, tableBase, 55.0, UnitRelative},
		{SensorTemperature, SensorDHT11, tableBase, 21.0, UnitCelsius},
	}

	table := FromReadings(rows)

	got := table.Rows()
	if got[0].Type != SensorHumidity {
		t.Errorf("first row type = %s, want humidity", got[0].Type)
	}
	if got[1].ID != SensorDHT11 || got[2].ID != SensorPICPU {
		t.Errorf("same-type tie not broken by id: %s, %s", got[1].ID, got[2].ID)
	}
}

func TestMergeKeepsReceiverOnConflict(t *testing.T) {
	a := FromReadings([]Reading{tempAt(0, 20.0)})
	b := FromReadings([]Reading{tempAt(0, 99.0), tempAt(time.Second, 21.0)})

	merged := a.Merge(b)

	if merged.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", merged.Len())
	}
	first, _ := merged.First()
	if first.Value != 20.0 {
		t.Errorf("conflicting key value = %g, want receiver's 20.0", first.Value)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := FromReadings([]Reading{tempAt(0, 20.0)})
	b := FromReadings([]Reading{tempAt(time.Second, 21.0)})

	_ = a.Merge(b)

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("inputs mutated: len(a)=%d len(b)=%d", a.Len(), b.Len())
	}
}

func TestSliceHalfOpen(t *testing.T) {
	table := FromReadings([]Reading{
		tempAt(0, 20.0),
		tempAt(1*time.Second, 21.0),
		tempAt(2*time.Second, 22.0),
		tempAt(3*time.Second, 23.0),
	})

	start := tableBase.Add(1 * time.Second)
	end := tableBase.Add(3 * time.Second)

	got := table.Slice(&start, &end)

	if got.Len() != 2 {
		t.Fatalf("Slice() len = %d, want 2", got.Len())
	}
	first, _ := got.First()
	last, _ := got.Last()
	if !first.Timestamp.Equal(start) {
		t.Errorf("first = %v, want start %v (inclusive)", first.Timestamp, start)
	}
	if !last.Timestamp.Before(end) {
		t.Errorf("last = %v, want before end %v (exclusive)", last.Timestamp, end)
	}
}

func TestSliceOpenEndpoints(t *testing.T) {
	table := FromReadings([]Reading{
		tempAt(0, 20.0),
		tempAt(1*time.Second, 21.0),
		tempAt(2*time.Second, 22.0),
	})

	if got := table.Slice(nil, nil); got.Len() != 3 {
		t.Errorf("Slice(nil, nil) len = %d, want 3", got.Len())
	}

	start := tableBase.Add(1 * time.Second)
	if got := table.Slice(&start, nil); got.Len() != 2 {
		t.Errorf("Slice(start, nil) len = %d, want 2", got.Len())
	}

	end := tableBase.Add(1 * time.Second)
	if got := table.Slice(nil, &end); got.Len() != 1 {
		t.Errorf("Slice(nil, end) len = %d, want 1", got.Len())
	}
}

func TestSliceEmptyTable(t *testing.T) {
	var table Table
	start := tableBase
	if got := table.Slice(&start, nil); !got.Empty() {
		t.Errorf("Slice on empty table returned %d rows", got.Len())
	}
}

func TestSince(t *testing.T) {
	table := FromReadings([]Reading{
		tempAt(0, 20.0),
		tempAt(1*time.Second, 21.0),
		tempAt(2*time.Second, 22.0),
	})

	got := table.Since(tableBase.Add(1 * time.Second))
	if got.Len() != 2 {
		t.Fatalf("Since() len = %d, want 2", got.Len())
	}
	first, _ := got.First()
	if !first.Timestamp.Equal(tableBase.Add(1 * time.Second)) {
		t.Errorf("Since() first = %v, want boundary row included", first.Timestamp)
	}
}

func TestTail(t *testing.T) {
	table := FromReadings([]Reading{
		tempAt(0, 20.0),
		tempAt(1*time.Second, 21.0),
		tempAt(2*time.Second, 22.0),
	})

	got := table.Tail(2)
	if got.Len() != 2 {
		t.Fatalf("Tail(2) len = %d, want 2", got.Len())
	}
	last, _ := got.Last()
	if last.Value != 22.0 {
		t.Errorf("Tail(2) last value = %g, want 22.0", last.Value)
	}

	if got := table.Tail(10); got.Len() != 3 {
		t.Errorf("Tail(10) len = %d, want 3", got.Len())
	}
	if got := table.Tail(0); !got.Empty() {
		t.Errorf("Tail(0) len = %d, want 0", got.Len())
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	table := FromReadings([]Reading{
		{SensorTemperature, SensorDHT11, tableBase, 21.0, UnitCelsius},
		{"pressure", SensorDHT11, tableBase.Add(time.Second), 1013.0, UnitCelsius},
		{SensorHumidity, SensorDS18B20, tableBase.Add(2 * time.Second), 40.0, UnitRelative},
	})

	err := table.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}

	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("Validate() error type = %T, want *SchemaError", err)
	}
	if len(serr.Violations) != 2 {
		t.Errorf("violations = %d, want 2", len(serr.Violations))
	}
}

func TestValidateEmptyTable(t *testing.T) {
	var table Table
	if err := table.Validate(); err != nil {
		t.Errorf("Validate() on empty table = %v, want nil", err)
	}
}

func TestEqualComparesInstants(t *testing.T) {
	utc := time.Date(2024, 2, 12, 8, 0, 0, 500000000, time.UTC)
	cet := utc.In(time.FixedZone("CET", 3600))

	a := FromReadings([]Reading{{SensorTemperature, SensorDHT11, utc, 21.0, UnitCelsius}})
	b := FromReadings([]Reading{{SensorTemperature, SensorDHT11, cet, 21.0, UnitCelsius}})

	if !a.Equal(b) {
		t.Error("tables with same instant in different zones not equal")
	}
}
