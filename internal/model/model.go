package model

import (
	"time"

	"github.com/google/uuid"
)

// RecurrenceSpec describes how a series repeats. Rule is an RFC-5545-style
// RRULE body (e.g. "FREQ=WEEKLY;BYDAY=TU"). At most one of Until/Count may
// be set; if neither is set the series is open-ended and bounded only by
// the generation window.
type RecurrenceSpec struct {
	Rule       string
	AnchorDate time.Time // local calendar date; clock part is ignored
	Until      *time.Time
	Count      int // 0 means unbounded
}

// SeriesDefaults is the template copied onto every generated occurrence.
// The copy is fixed at series-creation time; per-instance overrides are a
// read-time concern elsewhere in the system and never mutate these fields.
type SeriesDefaults struct {
	Title       string
	Description string

	LocationName    string
	LocationAddress string
	Latitude        float64
	Longitude       float64
	OnlineURL       string

	Capacity  int
	PriceType string
	ImageURL  string

	CreatorID   string
	OrganizerID string
	TribeID     string
	VenueID     string
}

// Series is a recurring-event template plus bookkeeping for how far its
// concrete occurrences have been generated.
type Series struct {
	ID   uuid.UUID
	Slug string

	Recurrence RecurrenceSpec
	Defaults   SeriesDefaults

	// LocalStart is the wall-clock start time ("HH:MM:SS") in Timezone.
	LocalStart      string
	DurationMinutes int
	Timezone        string

	// GeneratedUntil is the watermark: the UTC instant up to which
	// occurrences have already been materialized. Nil before the first
	// successful generation completes.
	GeneratedUntil *time.Time

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Occurrence is one concrete instance materialized from a series.
type Occurrence struct {
	ID       uuid.UUID
	SeriesID uuid.UUID

	// Slug is the series slug plus the compact instance date,
	// e.g. "salsa-social-x7kq-20250114".
	Slug string

	// Defaults is the series template copied onto this instance at
	// generation time. Later edits to an instance are recorded as
	// exceptions, never by rewriting the series.
	Defaults SeriesDefaults

	// InstanceDate is the local calendar date of the occurrence.
	InstanceDate time.Time

	// StartsAt / EndsAt are absolute UTC instants.
	StartsAt time.Time
	EndsAt   time.Time

	// IsException marks instances that were individually modified after
	// generation. The generator only ever writes normal instances.
	IsException bool

	CreatedAt time.Time
}
