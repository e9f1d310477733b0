package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/schema"
)

// DirBackend stores one parquet file per shard in a directory. Writes
// go to a temp file and rename into place, so a crash mid-write never
// leaves a truncated shard behind the shard's name.
type DirBackend struct {
	dir string
}

// NewDirBackend creates the directory if needed and returns a backend
// over it.
func NewDirBackend(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &DirBackend{dir: dir}, nil
}

// Dir returns the shard directory.
func (b *DirBackend) Dir() string {
	return b.dir
}

func (b *DirBackend) path(key Key) string {
	return filepath.Join(b.dir, key.String()+format.Columnar.Ext())
}

// Load returns the shard's table. A missing file is an empty shard; an
// unreadable one is logged and treated the same.
func (b *DirBackend) Load(key Key) schema.Table {
	table, err := format.Columnar.Load(b.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("unreadable shard treated as empty", "shard", key.String(), "error", err)
		}
		return schema.Table{}
	}
	return table
}

// Save writes the shard atomically.
func (b *DirBackend) Save(key Key, table schema.Table) error {
	path := b.path(key)
	tmp := path + ".tmp"

	if err := format.Columnar.Write(table, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename shard %s: %w", key, err)
	}
	return nil
}

// Keys scans the directory for shard files. Files that are not named
// like a shard are ignored.
func (b *DirBackend) Keys() []Key {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		log.Warn("cannot scan archive directory", "dir", b.dir, "error", err)
		return nil
	}

	var keys []Key
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, format.Columnar.Ext()) {
			continue
		}
		key, err := ParseKey(strings.TrimSuffix(name, format.Columnar.Ext()))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Empty reports whether the directory holds no shards.
func (b *DirBackend) Empty() bool {
	return len(b.Keys()) == 0
}
