// Package datastore merges the three storage layers behind one read
// and write surface: the bounded write buffer, the lazily refreshed
// hot cache, and the durable week-sharded archive (or a remote peer
// standing in for it).
//
// A Store is not synchronized. Callers that share one across
// goroutines must serialize access themselves.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/buffer"
	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/peer"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("datastore")

// ErrInvalidRange is returned when a range query's end precedes its
// start.
var ErrInvalidRange = errors.New("range end precedes start")

// Config assembles a Store. Archive and Peer are mutually exclusive
// data sources: when Peer is set the store reads archive data over
// HTTP and never touches local storage.
type Config struct {
	// Archive is the local durable store. May be nil in peer mode.
	Archive *archive.Archive

	// Peer serves archive data remotely when set.
	Peer *peer.Client

	// BufferCapacity sizes the write buffer. Zero selects the default.
	BufferCapacity int

	// SummaryAccuracy is the relative accuracy of quantile summaries.
	SummaryAccuracy float64
}

// Store is the merged view over buffer, hot cache, and archive.
type Store struct {
	buf     *buffer.Buffer
	archive *archive.Archive
	peer    *peer.Client

	// cache holds recent readings already folded out of the buffer.
	// stale forces a reload from the durable source on the next read.
	cache schema.Table
	stale bool

	accuracy float64
}

// New creates a Store and registers the buffer's fold callback.
func New(cfg *Config) *Store {
	s := &Store{
		buf:      buffer.New(cfg.BufferCapacity),
		archive:  cfg.Archive,
		peer:     cfg.Peer,
		accuracy: cfg.SummaryAccuracy,
	}
	if s.accuracy <= 0 || s.accuracy >= 1 {
		s.accuracy = defaults.DefaultSummaryAccuracy
	}
	s.buf.RegisterOnFull(s.foldBatch)
	return s
}

// AddReading appends a reading to the write buffer. The reading is not
// validated here: one bad late arrival must not block ingestion, and
// validation happens when the batch folds into the cache.
func (s *Store) AddReading(r schema.Reading) {
	s.buf.Add(r)
}

// foldBatch merges a buffer batch into the hot cache. A batch that
// fails validation is discarded whole and logged with its contents;
// the cache is left untouched.
func (s *Store) foldBatch(batch []schema.Reading) {
	if len(batch) == 0 {
		return
	}
	table := schema.FromReadings(batch)
	if err := table.Validate(); err != nil {
		log.Error("discarding buffer batch that failed validation",
			"error", err,
			"rows", len(batch),
			"batch", batch)
		return
	}
	s.cache = s.cache.Merge(table)
}

// CurrentView returns the merged hot view: the cache, reloaded from
// the durable source if stale or empty, plus everything still pending
// in the buffer. Every read reconciles pending buffer content.
func (s *Store) CurrentView(ctx context.Context) schema.Table {
	s.refreshCache(ctx)
	s.foldBatch(s.buf.UnsyncedSlice())
	s.buf.Reset()
	return s.cache
}

// refreshCache reloads the hot cache from the archive or the peer when
// it is stale or empty. A peer failure keeps the previous cache and
// leaves the staleness mark in place so the next read retries.
func (s *Store) refreshCache(ctx context.Context) {
	if !s.stale && !s.cache.Empty() {
		return
	}

	switch {
	case s.peer != nil:
		table, err := s.peer.FetchArchive(ctx)
		if err != nil {
			log.Warn("keeping previous hot cache, peer fetch failed", "error", err)
			return
		}
		s.cache = table
	case s.archive != nil:
		s.cache = s.archive.LoadRecent()
	default:
		return
	}
	s.stale = false
}

// Range returns readings in the half-open interval [start, end). A nil
// bound leaves that side open. Results merge the buffer, the hot
// cache, and historic shards when the interval reaches below the hot
// window.
func (s *Store) Range(ctx context.Context, start, end *time.Time) (schema.Table, error) {
	if start != nil && end != nil && end.Before(*start) {
		return schema.Table{}, fmt.Errorf("%w: start %s, end %s",
			ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	result := s.buf.Query(start, end)

	s.refreshCache(ctx)
	result = result.Merge(s.cache.Slice(start, end))

	if s.needsHistoric(start) {
		historic, err := s.historic(ctx, start, end)
		if err != nil {
			return schema.Table{}, err
		}
		result = result.Merge(historic.Slice(start, end))
	}
	return result, nil
}

// Since returns all readings at or after ts.
func (s *Store) Since(ctx context.Context, ts time.Time) (schema.Table, error) {
	return s.Range(ctx, &ts, nil)
}

// Tail returns the last n rows of the current view.
func (s *Store) Tail(ctx context.Context, n int) schema.Table {
	return s.CurrentView(ctx).Tail(n)
}

// hotFloor is the lower bound of the window the hot cache covers: the
// start of the shard seven days back, matching Archive.LoadRecent.
func hotFloor() time.Time {
	return archive.KeyForTime(time.Now().UTC().AddDate(0, 0, -7)).Start()
}

// needsHistoric reports whether a query starting at start must consult
// shards below the hot window.
func (s *Store) needsHistoric(start *time.Time) bool {
	floor := hotFloor()

	if s.peer != nil {
		return start == nil || start.Before(floor)
	}
	if s.archive == nil || s.archive.Empty() {
		return false
	}
	if start == nil {
		oldest, ok := s.archive.OldestDate()
		return ok && oldest.Before(floor)
	}
	return start.Before(floor)
}

// historic loads readings below the hot window. Results are whole
// shards; the caller slices them to the query interval.
func (s *Store) historic(ctx context.Context, start, end *time.Time) (schema.Table, error) {
	if s.peer != nil {
		since := time.Unix(0, 0).UTC()
		if start != nil {
			since = *start
		}
		table, err := s.peer.FetchSince(ctx, since)
		if err != nil {
			return schema.Table{}, fmt.Errorf("load historic readings: %w", err)
		}
		return table, nil
	}
	return s.archive.Historic(start, end), nil
}

// Flush persists the current view to the archive and marks the cache
// stale so the next read rebuilds it from the durable store. Without
// an archive (peer mode) it is a no-op.
func (s *Store) Flush(ctx context.Context) error {
	if s.archive == nil {
		log.Debug("flush skipped, no local archive configured")
		return nil
	}

	view := s.CurrentView(ctx)
	if err := s.archive.Save(view); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	s.stale = true

	log.Info("flushed store to archive", "rows", view.Len())
	return nil
}

// Serialize renders the current view, or the given range when a bound
// is set, in format f.
func (s *Store) Serialize(ctx context.Context, f format.Format, start, end *time.Time) ([]byte, error) {
	if start == nil && end == nil {
		return f.Serialize(s.CurrentView(ctx))
	}
	table, err := s.Range(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return f.Serialize(table)
}
