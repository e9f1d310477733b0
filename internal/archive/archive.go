// Package archive implements the durable reading archive. Tables are
// partitioned into ISO-week shards held by a pluggable Backend; saves
// merge with existing shard contents so re-archiving overlapping data
// is idempotent.
package archive

import (
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("archive")

// Backend persists week shards. Load returns an empty table for a
// missing or unreadable shard: durability gaps degrade to missing data
// rather than failing reads.
type Backend interface {
	// Load returns the shard's table, empty when absent or corrupt.
	Load(key Key) schema.Table

	// Save replaces the shard with the given table.
	Save(key Key, table schema.Table) error

	// Keys lists the shards currently held, in no particular order.
	Keys() []Key

	// Empty reports whether the backend holds no shards.
	Empty() bool
}

// Archive stores reading tables in per-week shards behind a Backend.
type Archive struct {
	backend Backend
}

// New creates an Archive over the given backend.
func New(backend Backend) *Archive {
	return &Archive{backend: backend}
}

// Empty reports whether the archive holds no shards.
func (a *Archive) Empty() bool {
	return a.backend.Empty()
}

// Keys lists the held shards sorted by start.
func (a *Archive) Keys() []Key {
	keys := a.backend.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Week < keys[j].Week
	})
	return keys
}

// Save partitions the table by ISO week and merges each partition into
// its shard. Rows already archived win key conflicts, and shards not
// covered by the table are left untouched.
func (a *Archive) Save(t schema.Table) error {
	if t.Empty() {
		return nil
	}

	parts := make(map[Key][]schema.Reading)
	for _, r := range t.Rows() {
		key := KeyForTime(r.Timestamp)
		parts[key] = append(parts[key], r)
	}

	keys := make([]Key, 0, len(parts))
	for key := range parts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Start().Before(keys[j].Start())
	})

	for _, key := range keys {
		merged := a.backend.Load(key).Merge(schema.FromReadings(parts[key]))
		if err := a.backend.Save(key, merged); err != nil {
			return fmt.Errorf("save shard %s: %w", key, err)
		}
		log.Debug("shard saved", "shard", key.String(), "rows", merged.Len())
	}
	return nil
}

// LoadRecent returns the hot window: last week's shard merged with the
// current week's.
func (a *Archive) LoadRecent() schema.Table {
	now := time.Now().UTC()
	last := a.backend.Load(KeyForTime(now.AddDate(0, 0, -7)))
	current := a.backend.Load(KeyForTime(now))
	return last.Merge(current)
}

// Historic returns the merged shards covering [start, end]. A nil
// endpoint defaults to the archive's extent on that side. The result
// is whole shards: callers slice to exact bounds.
func (a *Archive) Historic(start, end *time.Time) schema.Table {
	keys := a.Keys()
	if len(keys) == 0 {
		return schema.Table{}
	}

	if start != nil && end != nil && start.After(*end) {
		return schema.Table{}
	}

	s := keys[0].Start()
	if start != nil {
		s = start.UTC()
	}
	e := keys[len(keys)-1].Start()
	if end != nil {
		e = end.UTC()
	}
	return a.loadRange(s, e)
}

// loadRange unions shards week by week. Ranges crossing a year
// boundary recurse from January 4 of the following year, which always
// lies in week 1 of that ISO year. The bounds are compared as ISO
// weeks: around January 1 the calendar order of two timestamps can
// disagree with the order of their weeks.
func (a *Archive) loadRange(start, end time.Time) schema.Table {
	startYear, startWeek := start.ISOWeek()
	endYear, endWeek := end.ISOWeek()

	if startYear > endYear || (startYear == endYear && startWeek > endWeek) {
		return schema.Table{}
	}

	if startYear != endYear {
		merged := schema.Table{}
		for w := startWeek; w <= LastWeekOfYear(startYear); w++ {
			merged = merged.Merge(a.backend.Load(Key{Year: startYear, Week: w}))
		}
		next := time.Date(startYear+1, time.January, 4, 0, 0, 0, 0, time.UTC)
		return merged.Merge(a.loadRange(next, end))
	}

	merged := schema.Table{}
	for w := startWeek; w <= endWeek; w++ {
		merged = merged.Merge(a.backend.Load(Key{Year: startYear, Week: w}))
	}
	return merged
}

// OldestDate returns the start of the earliest shard. The second
// return is false when the archive is empty.
func (a *Archive) OldestDate() (time.Time, bool) {
	keys := a.Keys()
	if len(keys) == 0 {
		return time.Time{}, false
	}
	return keys[0].Start(), true
}

// NewestDate returns the first instant after the latest shard. The
// second return is false when the archive is empty.
func (a *Archive) NewestDate() (time.Time, bool) {
	keys := a.Keys()
	if len(keys) == 0 {
		return time.Time{}, false
	}
	return keys[len(keys)-1].End(), true
}
