// Package conflict decides whether two pieces of a doctor's calendar collide.
//
// All ranges are half-open: a range ending at 10:00 does not collide with one
// starting at 10:00.
package conflict

import (
	"fmt"
	"time"
)

// Range is a concrete [Start, End) interval of time.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Valid() bool {
	return r.Start.Before(r.End)
}

func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether r and o share any instant.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
}

// FirstOverlap returns the index of the first range in others that overlaps r,
// or -1.
func FirstOverlap(r Range, others []Range) int {
	for i, o := range others {
		if r.Overlaps(o) {
			return i
		}
	}
	return -1
}

// MinutesPerDay bounds a WeeklySpan. End may equal it to mean midnight.
const MinutesPerDay = 24 * 60

// WeeklySpan is a recurring [Start, End) span on one day of the week, in
// minutes since local midnight. Day runs 0 = Monday .. 6 = Sunday.
type WeeklySpan struct {
	Day   int
	Start int
	End   int
}

func (w WeeklySpan) Valid() bool {
	return w.Day >= 0 && w.Day <= 6 &&
		w.Start >= 0 && w.End <= MinutesPerDay &&
		w.Start < w.End
}

// Overlaps reports whether two weekly spans collide. Spans on different days
// never collide.
func (w WeeklySpan) Overlaps(o WeeklySpan) bool {
	return w.Day == o.Day && w.Start < o.End && o.Start < w.End
}

func (w WeeklySpan) String() string {
	return fmt.Sprintf("%s %s-%s", DayName(w.Day), FormatMinute(w.Start), FormatMinute(w.End))
}

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func DayName(day int) string {
	if day < 0 || day > 6 {
		return fmt.Sprintf("day(%d)", day)
	}
	return dayNames[day]
}

// Weekday converts a Go weekday (Sunday = 0) into the Monday-first index.
func Weekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// FormatMinute renders minutes since midnight as HH:MM.
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
