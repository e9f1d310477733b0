package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for individual reading violations.
var (
	ErrUnknownSensorType = errors.New("unknown sensor type")
	ErrUnknownSensorID   = errors.New("unknown sensor id")
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrIllegalPair       = errors.New("sensor pair not whitelisted")
	ErrUnitMismatch      = errors.New("unit does not match sensor type")
)

// SchemaError reports every violation found while validating a table.
// The full list is kept so an invalid batch can be logged whole for
// diagnosis before it is discarded.
type SchemaError struct {
	Violations []error
}

// Add records a violation.
func (e *SchemaError) Add(err error) {
	if err != nil {
		e.Violations = append(e.Violations, err)
	}
}

// HasViolations returns true if any violation was recorded.
func (e *SchemaError) HasViolations() bool {
	return len(e.Violations) > 0
}

// Err returns nil if no violations were recorded, otherwise the error.
func (e *SchemaError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if len(e.Violations) == 0 {
		return ""
	}
	if len(e.Violations) == 1 {
		return e.Violations[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "schema validation failed with %d violations:", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.Error())
	}
	return b.String()
}

// Unwrap returns the first violation for errors.Is/As support.
func (e *SchemaError) Unwrap() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e.Violations[0]
}
