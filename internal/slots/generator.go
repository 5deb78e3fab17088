// Package slots computes bookable candidate ranges from weekly availability
// minus the doctor's active reservations.
package slots

import (
	"sort"
	"time"

	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/conflict"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// Tile splits every window into consecutive duration-length ranges on the
// given calendar date in loc. A tile that would run past its window's end is
// dropped. The result is ordered by start and expressed in UTC.
func Tile(windows []availability.Window, date time.Time, loc *time.Location, duration time.Duration) []conflict.Range {
	if duration <= 0 {
		return nil
	}
	y, m, d := date.Date()

	var out []conflict.Range
	for _, w := range windows {
		blockStart := time.Date(y, m, d, w.StartMinute/60, w.StartMinute%60, 0, 0, loc)
		blockEnd := time.Date(y, m, d, w.EndMinute/60, w.EndMinute%60, 0, 0, loc)

		for cur := blockStart; !cur.Add(duration).After(blockEnd); cur = cur.Add(duration) {
			out = append(out, conflict.Range{Start: cur.UTC(), End: cur.Add(duration).UTC()})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Generate tiles the windows and removes every candidate that overlaps a
// blocker. When date is today in loc, candidates starting at or before now
// are dropped too.
func Generate(windows []availability.Window, blockers []conflict.Range, date time.Time, loc *time.Location, duration time.Duration, now time.Time) []conflict.Range {
	tiles := Tile(windows, date, loc, duration)

	y, m, d := date.Date()
	ny, nm, nd := now.In(loc).Date()
	today := y == ny && m == nm && d == nd

	out := make([]conflict.Range, 0, len(tiles))
	for _, t := range tiles {
		if today && !t.Start.After(now) {
			continue
		}
		if conflict.FirstOverlap(t, blockers) >= 0 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Contains reports whether r is exactly one of the tiles.
func Contains(tiles []conflict.Range, r conflict.Range) bool {
	for _, t := range tiles {
		if t.Start.Equal(r.Start) && t.End.Equal(r.End) {
			return true
		}
	}
	return false
}

// DayBounds returns the UTC instants of local midnight at the start and end
// of date in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC(), time.Date(y, m, d+1, 0, 0, 0, 0, loc).UTC()
}
