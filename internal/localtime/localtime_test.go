package localtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tod, err := Parse("19:00:00")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 19}, tod)
	require.Equal(t, "19:00:00", tod.String())

	tod, err = Parse("09:30:15")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 9, Minute: 30, Second: 15}, tod)

	tod, err = Parse("19:00")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 19}, tod)

	bad := []string{
		"", "25:00:00", "19:61:00", "19:00:99", "noon",
		// Valid prefixes with trailing junk must not slip through.
		"19:00pm", "19:00:xx", "19:00:00Z", "7pm",
	}
	for _, s := range bad {
		_, err := Parse(s)
		require.Error(t, err, "expected %q to be rejected", s)
	}
}

func TestInstantUsesOffsetForDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	tod := TimeOfDay{Hour: 19}

	// Standard time (UTC-5): 19:00 local is midnight UTC the next day.
	winter := Instant(time.Date(2025, time.January, 15, 0, 0, 0, 0, loc), tod, loc)
	require.Equal(t, time.Date(2025, time.January, 16, 0, 0, 0, 0, time.UTC), winter)

	// Daylight time (UTC-4): same wall clock lands an hour earlier in UTC.
	summer := Instant(time.Date(2025, time.July, 15, 0, 0, 0, 0, loc), tod, loc)
	require.Equal(t, time.Date(2025, time.July, 15, 23, 0, 0, 0, time.UTC), summer)
}

func TestRange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	tod := TimeOfDay{Hour: 19}
	day := time.Date(2025, time.January, 14, 0, 0, 0, 0, loc)

	start, end, err := Range(day, tod, 120, loc)
	require.NoError(t, err)
	require.Equal(t, 120*time.Minute, end.Sub(start))
	require.True(t, end.After(start))

	_, _, err = Range(day, tod, 0, loc)
	require.Error(t, err)
	_, _, err = Range(day, tod, -30, loc)
	require.Error(t, err)
}
