package archive

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key identifies one ISO-8601 week shard.
type Key struct {
	Year int // ISO week-numbering year, not calendar year
	Week int // 1..53
}

// KeyForTime returns the shard key covering ts.
func KeyForTime(ts time.Time) Key {
	year, week := ts.UTC().ISOWeek()
	return Key{Year: year, Week: week}
}

// ParseKey parses a shard name produced by Key.String.
func ParseKey(s string) (Key, error) {
	yearStr, weekStr, ok := strings.Cut(s, "-W")
	if !ok {
		return Key{}, fmt.Errorf("malformed shard key %q", s)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Key{}, fmt.Errorf("malformed shard key %q: %w", s, err)
	}
	week, err := strconv.Atoi(weekStr)
	if err != nil {
		return Key{}, fmt.Errorf("malformed shard key %q: %w", s, err)
	}
	if week < 1 || week > LastWeekOfYear(year) {
		return Key{}, fmt.Errorf("shard key %q: week out of range", s)
	}
	return Key{Year: year, Week: week}, nil
}

// String renders the shard name, e.g. "2024-W07".
func (k Key) String() string {
	return fmt.Sprintf("%d-W%02d", k.Year, k.Week)
}

// Start returns the shard's first instant (Monday 00:00 UTC).
func (k Key) Start() time.Time {
	return StartOfWeek(k.Year, k.Week)
}

// End returns the first instant after the shard (the following Monday).
func (k Key) End() time.Time {
	return EndOfWeek(k.Year, k.Week)
}

// StartOfWeek returns the first instant (Monday 00:00 UTC) of the given
// ISO week. Per ISO 8601, week 1 is the week containing January 4, so
// its Monday is the Monday on or before that date.
func StartOfWeek(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	weekOne := jan4.AddDate(0, 0, -offset)
	return weekOne.AddDate(0, 0, (week-1)*7)
}

// EndOfWeek returns the first instant after the given ISO week. Weeks
// tile the timeline: EndOfWeek(y, w) equals the start of the following
// week even across year boundaries, where week+1 arithmetic breaks on
// 53-week years.
func EndOfWeek(year, week int) time.Time {
	return StartOfWeek(year, week).AddDate(0, 0, 7)
}

// LastWeekOfYear returns the number of ISO weeks (52 or 53) in the
// given week-numbering year. December 28 always falls in the last week.
func LastWeekOfYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}
