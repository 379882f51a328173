// Package localtime combines local calendar dates with wall-clock times
// of day and resolves them into absolute UTC instants using the IANA
// timezone database, so the offset in effect on each specific date is
// applied rather than a fixed constant.
package localtime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time ("HH:MM:SS") with no date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// Parse accepts "HH:MM:SS" or "HH:MM". Anything else, including trailing
// characters after a valid prefix, is rejected.
func Parse(s string) (TimeOfDay, error) {
	if s == "" {
		return TimeOfDay{}, errors.New("time of day is empty")
	}

	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("malformed time of day %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Instant resolves the given local calendar date (clock part ignored) and
// time of day in loc into an absolute UTC instant.
func Instant(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, tod.Second, 0, loc).UTC()
}

// Range resolves a local date plus time of day into UTC start and end
// instants. durationMinutes must be positive; that is enforced at series
// validation, so a non-positive value here is a programming error.
func Range(date time.Time, tod TimeOfDay, durationMinutes int, loc *time.Location) (time.Time, time.Time, error) {
	if durationMinutes <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("non-positive duration %d", durationMinutes)
	}
	start := Instant(date, tod, loc)
	return start, start.Add(time.Duration(durationMinutes) * time.Minute), nil
}
