// Package schema defines sensor readings and their validity rules.
//
// A reading is a single measurement from one of a small, fixed set of
// sensors. The vocabulary of sensor types, sensor IDs, and units is
// closed: a reading whose enum fields fall outside the vocabulary, or
// whose (type, id) pair is not whitelisted, is invalid. Validation is
// deferred to merge boundaries so that a single bad reading never
// blocks ingestion.
package schema

import (
	"fmt"
	"time"
)

// SensorType identifies the measured quantity.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
)

// SensorTypes returns all valid sensor types.
func SensorTypes() []SensorType {
	return []SensorType{SensorTemperature, SensorHumidity}
}

// Valid reports whether the sensor type is in the vocabulary.
func (t SensorType) Valid() bool {
	return t == SensorTemperature || t == SensorHumidity
}

// SensorID identifies the physical sensor producing a reading.
type SensorID string

const (
	SensorDHT11   SensorID = "DHT11"
	SensorDS18B20 SensorID = "DS18B20"
	SensorPICPU   SensorID = "PI_CPU"
)

// SensorIDs returns all valid sensor IDs.
func SensorIDs() []SensorID {
	return []SensorID{SensorDHT11, SensorDS18B20, SensorPICPU}
}

// Valid reports whether the sensor ID is in the vocabulary.
func (id SensorID) Valid() bool {
	return id == SensorDHT11 || id == SensorDS18B20 || id == SensorPICPU
}

// Unit is the unit of measurement, determined by the sensor type.
type Unit string

const (
	UnitCelsius  Unit = "C"
	UnitRelative Unit = "%"
)

// Valid reports whether the unit is in the vocabulary.
func (u Unit) Valid() bool {
	return u == UnitCelsius || u == UnitRelative
}

// UnitFor returns the unit mandated for a sensor type.
func UnitFor(t SensorType) Unit {
	if t == SensorHumidity {
		return UnitRelative
	}
	return UnitCelsius
}

// sensorWhitelist enumerates the legal (sensor_type, sensor_id) pairs.
// Not every sensor measures every quantity: only the DHT11 reports
// humidity, and the Pi's CPU sensor reports temperature only.
var sensorWhitelist = map[SensorType]map[SensorID]bool{
	SensorTemperature: {SensorDHT11: true, SensorDS18B20: true, SensorPICPU: true},
	SensorHumidity:    {SensorDHT11: true},
}

// ValidPair reports whether the (sensor_type, sensor_id) combination
// is whitelisted.
func ValidPair(t SensorType, id SensorID) bool {
	return sensorWhitelist[t][id]
}

// Reading is a single sensor measurement.
//
// The triple (Type, ID, Timestamp) is the reading's key: a table never
// holds two readings with the same key. Timestamps keep sub-second
// precision across serialization.
type Reading struct {
	Type      SensorType `json:"sensor_type"`
	ID        SensorID   `json:"sensor_id"`
	Timestamp time.Time  `json:"timestamp"`
	Value     float64    `json:"reading"`
	Unit      Unit       `json:"unit"`
}

// Validate checks the reading against the vocabulary and whitelist.
func (r Reading) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("sensor_type %q: %w", string(r.Type), ErrUnknownSensorType)
	}
	if !r.ID.Valid() {
		return fmt.Errorf("sensor_id %q: %w", string(r.ID), ErrUnknownSensorID)
	}
	if !r.Unit.Valid() {
		return fmt.Errorf("unit %q: %w", string(r.Unit), ErrUnknownUnit)
	}
	if !ValidPair(r.Type, r.ID) {
		return fmt.Errorf("pair (%s, %s): %w", r.Type, r.ID, ErrIllegalPair)
	}
	if r.Unit != UnitFor(r.Type) {
		return fmt.Errorf("unit %q for %s: %w", string(r.Unit), r.Type, ErrUnitMismatch)
	}
	return nil
}

// String renders the reading for log output.
func (r Reading) String() string {
	return fmt.Sprintf("%s/%s@%s=%g%s",
		r.Type, r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Value, r.Unit)
}

// sameKey reports whether two readings share the key triple.
func sameKey(a, b Reading) bool {
	return a.Type == b.Type && a.ID == b.ID && a.Timestamp.Equal(b.Timestamp)
}

// less orders readings ascending by timestamp, with ties broken by
// sensor type then sensor ID so the total order is deterministic.
func less(a, b Reading) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.ID < b.ID
}
