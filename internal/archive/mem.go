package archive

import "github.com/xtxerr/sensorlog/internal/schema"

// MemBackend keeps shards in memory. It backs the memory archive
// driver and tests; contents vanish with the process.
type MemBackend struct {
	shards map[Key]schema.Table
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{shards: make(map[Key]schema.Table)}
}

// Load returns the shard's table, empty when absent.
func (b *MemBackend) Load(key Key) schema.Table {
	return b.shards[key]
}

// Save replaces the shard with the given table.
func (b *MemBackend) Save(key Key, table schema.Table) error {
	b.shards[key] = table
	return nil
}

// Keys lists the held shards.
func (b *MemBackend) Keys() []Key {
	keys := make([]Key, 0, len(b.shards))
	for key := range b.shards {
		keys = append(keys, key)
	}
	return keys
}

// Empty reports whether the backend holds no shards.
func (b *MemBackend) Empty() bool {
	return len(b.shards) == 0
}
