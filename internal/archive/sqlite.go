package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xtxerr/sensorlog/internal/schema"
)

// SQLiteBackend stores shards as rows of a single readings table,
// keyed by shard name. The pool is pinned to one connection: the
// cgo-free driver serializes writers anyway and the archive has a
// single owner.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS readings (
		shard        TEXT    NOT NULL,
		sensor_type  TEXT    NOT NULL,
		sensor_id    TEXT    NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		reading      REAL    NOT NULL,
		unit         TEXT    NOT NULL,
		PRIMARY KEY (shard, sensor_type, sensor_id, timestamp_ns)
	);`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create readings table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load returns the shard's table, empty when absent or unreadable.
func (b *SQLiteBackend) Load(key Key) schema.Table {
	rows, err := b.db.Query(
		`SELECT sensor_type, sensor_id, timestamp_ns, reading, unit
		 FROM readings WHERE shard = ? ORDER BY timestamp_ns`,
		key.String())
	if err != nil {
		log.Warn("unreadable shard treated as empty", "shard", key.String(), "error", err)
		return schema.Table{}
	}
	defer rows.Close()

	var readings []schema.Reading
	for rows.Next() {
		var (
			sensorType, sensorID, unit string
			ns                         int64
			value                      float64
		)
		if err := rows.Scan(&sensorType, &sensorID, &ns, &value, &unit); err != nil {
			log.Warn("unreadable shard treated as empty", "shard", key.String(), "error", err)
			return schema.Table{}
		}
		readings = append(readings, schema.Reading{
			Type:      schema.SensorType(sensorType),
			ID:        schema.SensorID(sensorID),
			Timestamp: time.Unix(0, ns).UTC(),
			Value:     value,
			Unit:      schema.Unit(unit),
		})
	}
	if err := rows.Err(); err != nil {
		log.Warn("unreadable shard treated as empty", "shard", key.String(), "error", err)
		return schema.Table{}
	}
	return schema.FromReadings(readings)
}

// Save replaces the shard's rows in one transaction.
func (b *SQLiteBackend) Save(key Key, table schema.Table) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save of shard %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM readings WHERE shard = ?`, key.String()); err != nil {
		return fmt.Errorf("clear shard %s: %w", key, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO readings (shard, sensor_type, sensor_id, timestamp_ns, reading, unit)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert for shard %s: %w", key, err)
	}
	defer stmt.Close()

	for _, r := range table.Rows() {
		if _, err := stmt.Exec(key.String(), string(r.Type), string(r.ID),
			r.Timestamp.UnixNano(), r.Value, string(r.Unit)); err != nil {
			return fmt.Errorf("insert into shard %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit shard %s: %w", key, err)
	}
	return nil
}

// Keys lists shards holding at least one row.
func (b *SQLiteBackend) Keys() []Key {
	rows, err := b.db.Query(`SELECT DISTINCT shard FROM readings`)
	if err != nil {
		log.Warn("cannot list shards", "error", err)
		return nil
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Warn("cannot list shards", "error", err)
			return nil
		}
		key, err := ParseKey(name)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		log.Warn("cannot list shards", "error", err)
		return nil
	}
	return keys
}

// Empty reports whether the database holds no readings.
func (b *SQLiteBackend) Empty() bool {
	var exists int
	err := b.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM readings)`).Scan(&exists)
	if err != nil {
		return true
	}
	return exists == 0
}
