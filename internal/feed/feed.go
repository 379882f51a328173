// Package feed renders a series' generated occurrences as an iCalendar
// feed so external calendar clients can subscribe to a series.
package feed

import (
	ical "github.com/arran4/golang-ical"

	"seriesd/internal/model"
)

const productID = "-//seriesd//series feed//EN"

// Build serializes a series and its occurrences into an iCalendar
// document. Occurrence slugs double as stable UIDs.
func Build(ser *model.Series, occs []model.Occurrence) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, occ := range occs {
		ev := cal.AddEvent(occ.Slug)
		ev.SetDtStampTime(occ.CreatedAt)
		ev.SetStartAt(occ.StartsAt)
		ev.SetEndAt(occ.EndsAt)
		ev.SetSummary(occ.Defaults.Title)
		if occ.Defaults.Description != "" {
			ev.SetDescription(occ.Defaults.Description)
		}
		if loc := occ.Defaults.LocationName; loc != "" {
			if occ.Defaults.LocationAddress != "" {
				loc += ", " + occ.Defaults.LocationAddress
			}
			ev.SetLocation(loc)
		}
		if occ.Defaults.OnlineURL != "" {
			ev.SetURL(occ.Defaults.OnlineURL)
		}
	}

	return cal.Serialize()
}

// ContentType is the MIME type for serialized feeds.
const ContentType = "text/calendar; charset=utf-8"
