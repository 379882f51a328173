package recur

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"seriesd/internal/model"
)

// defaultMaxOccurrences is a safety cap to avoid extremely large or
// runaway expansions of open-ended rules.
const defaultMaxOccurrences = 5000

// Occurrence times are anchored at noon local time. Using noon (rather
// than midnight) keeps date arithmetic away from DST transitions, which
// in some zones fall on midnight. The wall-clock start of each instance
// is applied separately by internal/localtime.
const anchorHour = 12

// AtNoon returns the calendar date of t pinned to 12:00:00 in loc.
func AtNoon(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, anchorHour, 0, 0, 0, loc)
}

// ValidateRule checks that rule is a structurally valid recurrence
// expression: it must carry a frequency, parse as an RRULE body, and must
// not declare both UNTIL and COUNT (that combination is ambiguous about
// which bound wins).
func ValidateRule(rule string) error {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return errors.New("recurrence rule is empty")
	}
	if !strings.Contains(strings.ToUpper(trimmed), "FREQ=") {
		return errors.New("recurrence rule has no FREQ")
	}

	opt, err := rrule.StrToROption(trimmed)
	if err != nil {
		return fmt.Errorf("parse recurrence rule: %w", err)
	}
	if opt.Count > 0 && !opt.Until.IsZero() {
		return errors.New("recurrence rule declares both UNTIL and COUNT")
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return fmt.Errorf("unsupported recurrence rule: %w", err)
	}
	return nil
}

// Expand produces the ordered list of occurrence dates for spec that fall
// within [windowStart, windowEnd] (inclusive, local calendar dates; clock
// parts are ignored).
//
// The rule's phase is locked to the anchor date for the lifetime of the
// series: DTSTART is always the anchor, regardless of the requested
// window, so splitting a window across several calls selects exactly the
// same dates as one expansion over the combined window. The returned
// times are pinned to noon in loc, strictly ascending, with no
// duplicates.
func Expand(spec model.RecurrenceSpec, windowStart, windowEnd time.Time, loc *time.Location, maxOccurrences int) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}

	start := AtNoon(windowStart, loc)
	end := AtNoon(windowEnd, loc)
	if end.Before(start) {
		return nil, errors.New("expand: window end is before window start")
	}

	opt, err := rrule.StrToROption(strings.TrimSpace(spec.Rule))
	if err != nil {
		return nil, fmt.Errorf("parse recurrence rule: %w", err)
	}
	if opt.Count > 0 && !opt.Until.IsZero() {
		return nil, errors.New("recurrence rule declares both UNTIL and COUNT")
	}

	// Merge the spec-level end condition into the rule. A bound from the
	// rule string and a bound from the spec are rejected as conflicting.
	ruleBounded := opt.Count > 0 || !opt.Until.IsZero()
	switch {
	case spec.Count > 0 && spec.Until != nil:
		return nil, errors.New("both until and count set for series")
	case spec.Count > 0:
		if ruleBounded {
			return nil, errors.New("count conflicts with bound in recurrence rule")
		}
		opt.Count = spec.Count
	case spec.Until != nil:
		if ruleBounded {
			return nil, errors.New("until conflicts with bound in recurrence rule")
		}
		opt.Until = AtNoon(*spec.Until, loc)
	default:
		if !opt.Until.IsZero() {
			// Normalize a rule-supplied UNTIL to the noon convention so the
			// inclusive date bound compares exactly.
			opt.Until = AtNoon(opt.Until, loc)
		}
	}

	anchor := AtNoon(spec.AnchorDate, loc)
	opt.Dtstart = anchor

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("unsupported recurrence rule: %w", err)
	}

	times := r.Between(start, end, true)

	// The anchor date is itself always an occurrence: DTSTART defines the
	// first instance even when it does not match the rule's by-* parts.
	if !anchor.Before(start) && !anchor.After(end) {
		if len(times) == 0 || times[0].After(anchor) {
			times = append([]time.Time{anchor}, times...)
		}
	}

	if len(times) > maxOccurrences {
		return nil, fmt.Errorf("expand: more than %d occurrences in window", maxOccurrences)
	}

	// Strictly ascending, no duplicates.
	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		t = t.In(loc)
		if len(out) > 0 && !t.After(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
