// Package buffer implements the bounded in-memory reading buffer.
//
// The buffer is a fixed-capacity ring that absorbs every new reading.
// It counts readings added since the last sync; when the count reaches
// the capacity, a registered callback receives the unsynced readings so
// the owner can fold them into its cache. The oldest reading is
// overwritten once the ring is full, so a reading that was never synced
// and never queried can be lost by design.
package buffer

import (
	"time"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/schema"
)

// OnFullFunc receives the unsynced readings, oldest first, when the
// unsynced count reaches the buffer capacity.
type OnFullFunc func(batch []schema.Reading)

// Buffer is a fixed-capacity ring of readings with an unsynced counter.
//
// Buffer is not safe for concurrent use. It is owned by a single data
// store and the embedding layer serializes access to it.
type Buffer struct {
	data     []schema.Reading
	head     int64 // Next write position
	tail     int64 // Oldest data position
	capacity int64
	unsynced int64
	onFull   OnFullFunc
}

// New creates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaults.DefaultBufferCapacity
	}
	return &Buffer{
		data:     make([]schema.Reading, capacity),
		capacity: int64(capacity),
	}
}

// RegisterOnFull installs the callback invoked when the unsynced count
// reaches the buffer capacity. Only one callback is kept.
func (b *Buffer) RegisterOnFull(fn OnFullFunc) {
	b.onFull = fn
}

// Add appends a reading, overwriting the oldest when the ring is full.
// When the unsynced count reaches the capacity the on-full callback
// fires with the unsynced readings and the counter starts over.
func (b *Buffer) Add(r schema.Reading) {
	if b.count() >= b.capacity {
		// Overwrite oldest
		b.tail++
	}

	b.data[b.head%b.capacity] = r
	b.head++
	b.unsynced++

	if b.unsynced >= b.capacity && b.onFull != nil {
		b.onFull(b.UnsyncedSlice())
		b.unsynced = 0
	}
}

// UnsyncedSlice returns the readings added since the last sync, oldest
// first. While the ring is still filling it returns everything held:
// re-syncing an already-synced reading is harmless, losing one is not.
func (b *Buffer) UnsyncedSlice() []schema.Reading {
	n := b.count()
	if n == 0 {
		return nil
	}

	want := n
	if n >= b.capacity {
		want = b.unsynced
		if want > n {
			want = n
		}
		if want == 0 {
			return nil
		}
	}

	result := make([]schema.Reading, want)
	for i := int64(0); i < want; i++ {
		result[i] = b.data[(b.head-want+i)%b.capacity]
	}
	return result
}

// Reset marks the current contents as synced. While the ring is still
// filling the counter drops to zero; once full it is pinned to the
// element count so the next full cycle of adds triggers the callback
// again.
func (b *Buffer) Reset() {
	if b.count() < b.capacity {
		b.unsynced = 0
	} else {
		b.unsynced = b.count()
	}
}

// Query returns the readings with timestamp in the half-open interval
// [start, end). A nil start or end leaves that side unbounded. Query
// assumes readings were added in timestamp order.
func (b *Buffer) Query(start, end *time.Time) schema.Table {
	if b.count() == 0 {
		return schema.Table{}
	}

	oldest := b.at(b.tail).Timestamp
	newest := b.at(b.head - 1).Timestamp

	// No overlap with the held range.
	if start != nil && start.After(newest) {
		return schema.Table{}
	}
	if end != nil && !end.After(oldest) {
		return schema.Table{}
	}

	// Scan backward from the newest entry for the first position at or
	// after start.
	lo := b.tail
	if start != nil {
		lo = b.head
		for i := b.head - 1; i >= b.tail; i-- {
			if b.at(i).Timestamp.Before(*start) {
				break
			}
			lo = i
		}
	}

	// Scan forward from the oldest entry for the first position at or
	// after end.
	hi := b.head
	if end != nil {
		for i := b.tail; i < b.head; i++ {
			if !b.at(i).Timestamp.Before(*end) {
				hi = i
				break
			}
		}
	}

	if lo >= hi {
		return schema.Table{}
	}

	rows := make([]schema.Reading, 0, hi-lo)
	for i := lo; i < hi; i++ {
		rows = append(rows, b.at(i))
	}
	return schema.FromReadings(rows)
}

// Len returns the current number of readings in the buffer.
func (b *Buffer) Len() int {
	return int(b.count())
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return int(b.capacity)
}

// Unsynced returns the count of readings added since the last sync.
func (b *Buffer) Unsynced() int {
	return int(b.unsynced)
}

func (b *Buffer) count() int64 {
	return b.head - b.tail
}

func (b *Buffer) at(i int64) schema.Reading {
	return b.data[i%b.capacity]
}
