package schema

import (
	"fmt"
	"sort"
	"time"
)

// Table is an immutable collection of readings, unique per key triple
// and sorted ascending by timestamp. Every operation returns a new
// table; callers never observe mutation. The zero value is an empty
// table and is ready to use.
type Table struct {
	rows []Reading
}

// FromReadings builds a table from readings in any order, deduplicating
// by key triple and sorting into the canonical order. This is the
// repair pass applied after every load or deserialize: containers that
// drop enum typing or row order on the way to disk come back through
// here.
func FromReadings(rows []Reading) Table {
	return Table{rows: normalize(rows)}
}

// normalize copies, sorts ascending by (timestamp, type, id), and drops
// rows sharing a key with an earlier row. The stable sort means that on
// a key conflict the row appearing first in the input wins; true
// duplicates are identical anyway since the key includes the timestamp.
func normalize(rows []Reading) []Reading {
	if len(rows) == 0 {
		return nil
	}

	sorted := make([]Reading, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	out := sorted[:1]
	for _, r := range sorted[1:] {
		if sameKey(out[len(out)-1], r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.rows)
}

// Empty returns true if the table holds no rows.
func (t Table) Empty() bool {
	return len(t.rows) == 0
}

// Rows returns the rows in canonical order. The returned slice is
// shared with the table and must not be modified.
func (t Table) Rows() []Reading {
	return t.rows
}

// Merge unions two tables into a new deduplicated, sorted table. On a
// key conflict the receiver's row wins.
func (t Table) Merge(other Table) Table {
	if other.Empty() {
		return t
	}
	if t.Empty() {
		return other
	}

	combined := make([]Reading, 0, len(t.rows)+len(other.rows))
	combined = append(combined, t.rows...)
	combined = append(combined, other.rows...)
	return Table{rows: normalize(combined)}
}

// Slice returns the rows with timestamp in the half-open interval
// [start, end). A nil endpoint leaves that side unbounded.
func (t Table) Slice(start, end *time.Time) Table {
	lo := 0
	if start != nil {
		lo = sort.Search(len(t.rows), func(i int) bool {
			return !t.rows[i].Timestamp.Before(*start)
		})
	}
	hi := len(t.rows)
	if end != nil {
		hi = sort.Search(len(t.rows), func(i int) bool {
			return !t.rows[i].Timestamp.Before(*end)
		})
	}
	if lo >= hi {
		return Table{}
	}
	return Table{rows: t.rows[lo:hi]}
}

// Since returns the rows with timestamp at or after ts.
func (t Table) Since(ts time.Time) Table {
	return t.Slice(&ts, nil)
}

// Tail returns the last n rows, or the whole table if it has fewer.
func (t Table) Tail(n int) Table {
	if n <= 0 || t.Empty() {
		return Table{}
	}
	if n >= len(t.rows) {
		return t
	}
	return Table{rows: t.rows[len(t.rows)-n:]}
}

// First returns the oldest row. The second return is false on an empty
// table.
func (t Table) First() (Reading, bool) {
	if t.Empty() {
		return Reading{}, false
	}
	return t.rows[0], true
}

// Last returns the newest row. The second return is false on an empty
// table.
func (t Table) Last() (Reading, bool) {
	if t.Empty() {
		return Reading{}, false
	}
	return t.rows[len(t.rows)-1], true
}

// Validate checks every row against the schema. It returns nil or a
// *SchemaError carrying one entry per violating row.
func (t Table) Validate() error {
	var serr SchemaError
	for i, r := range t.rows {
		if err := r.Validate(); err != nil {
			serr.Add(fmt.Errorf("row %d (%s): %w", i, r, err))
		}
	}
	return serr.Err()
}

// Equal reports whether two tables hold the same rows in the same
// order, comparing timestamps as instants.
func (t Table) Equal(other Table) bool {
	if len(t.rows) != len(other.rows) {
		return false
	}
	for i := range t.rows {
		a, b := t.rows[i], other.rows[i]
		if a.Type != b.Type || a.ID != b.ID || a.Value != b.Value ||
			a.Unit != b.Unit || !a.Timestamp.Equal(b.Timestamp) {
			return false
		}
	}
	return true
}
