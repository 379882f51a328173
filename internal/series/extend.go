package series

import (
	"context"
	"fmt"

	"seriesd/internal/localtime"
	appLog "seriesd/internal/log"
	"seriesd/internal/model"
	"seriesd/internal/recur"
	"seriesd/internal/slug"

	"github.com/google/uuid"
)

// ExtendResult is the per-series outcome of an extension pass.
type ExtendResult struct {
	SeriesID uuid.UUID `json:"series_id"`
	Slug     string    `json:"slug"`
	Created  int       `json:"created"`
}

// ExtendSummary aggregates one extension pass.
type ExtendSummary struct {
	Checked int            `json:"checked"`
	Failed  int            `json:"failed"`
	Created int            `json:"created"`
	Results []ExtendResult `json:"results"`
}

// Extend pushes one series' watermark out to now + horizon, materializing
// every occurrence whose date lies strictly after the previous watermark.
// Re-running with an unchanged watermark is a no-op for dates by
// construction: the window starts at the watermark and dates on or before
// it are never candidates, so a crashed or concurrently retried run can
// not emit a duplicate.
func (s *Service) Extend(ctx context.Context, ser *model.Series) (int, error) {
	nowLocal := s.now().In(s.loc)
	newEnd := recur.AtNoon(nowLocal.AddDate(0, s.horizonMonths, 0), s.loc)

	// Resume point. The watermark is the primary cursor, but it lags the
	// persisted rows when a previous advance failed after its batch
	// landed, and it is absent entirely when the initial write failed.
	// The newest persisted instance date wins over a stale or missing
	// watermark, so recovery never re-emits an existing row. Only a
	// series with no occurrences at all starts from the anchor
	// inclusively.
	from := recur.AtNoon(ser.Recurrence.AnchorDate, s.loc)
	exclusiveFrom := false
	if ser.GeneratedUntil != nil {
		from = recur.AtNoon(ser.GeneratedUntil.In(s.loc), s.loc)
		exclusiveFrom = true
	}
	last, ok, err := s.store.LatestInstanceDate(ctx, ser.ID)
	if err != nil {
		return 0, fmt.Errorf("find resume point for %s: %w", ser.Slug, err)
	}
	if ok {
		if lastNoon := recur.AtNoon(last, s.loc); !exclusiveFrom || lastNoon.After(from) {
			from = lastNoon
			exclusiveFrom = true
		}
	}

	if !newEnd.After(from) {
		return 0, nil
	}

	dates, err := recur.Expand(ser.Recurrence, from, newEnd, s.loc, 0)
	if err != nil {
		return 0, fmt.Errorf("expand series %s: %w", ser.Slug, err)
	}

	tod, err := localtime.Parse(ser.LocalStart)
	if err != nil {
		return 0, fmt.Errorf("series %s has malformed local start: %w", ser.Slug, err)
	}

	rows := make([]model.Occurrence, 0, len(dates))
	for _, d := range dates {
		if exclusiveFrom && !d.After(from) {
			// Anything on or before the watermark was already materialized
			// by a previous window.
			continue
		}
		start, end, rerr := localtime.Range(d, tod, ser.DurationMinutes, s.loc)
		if rerr != nil {
			continue
		}
		rows = append(rows, model.Occurrence{
			ID:           uuid.New(),
			SeriesID:     ser.ID,
			Slug:         slug.ForOccurrence(ser.Slug, d),
			Defaults:     ser.Defaults,
			InstanceDate: d,
			StartsAt:     start,
			EndsAt:       end,
			CreatedAt:    s.now().UTC(),
		})
	}

	if len(rows) > 0 {
		if err := s.store.InsertOccurrences(ctx, rows); err != nil {
			// No compensation here: the series and its existing occurrences
			// stay valid, and the watermark was not touched.
			return 0, fmt.Errorf("persist occurrences for %s: %w", ser.Slug, err)
		}
	}

	watermark := newEnd.UTC()
	if err := s.store.UpdateWatermark(ctx, ser.ID, watermark); err != nil {
		appLog.Warn("watermark advance failed; next extension recovers",
			"series_id", ser.ID, "err", err)
	} else {
		ser.GeneratedUntil = &watermark
	}

	return len(rows), nil
}

// ExtendDue extends every active series whose watermark is within the
// configured lead of now. Individual series failures are logged and do
// not abort the pass.
func (s *Service) ExtendDue(ctx context.Context) (*ExtendSummary, error) {
	dueBefore := s.now().UTC().AddDate(0, s.leadMonths, 0)

	list, err := s.store.ListSeriesDueForExtension(ctx, dueBefore)
	if err != nil {
		return nil, fmt.Errorf("list series due for extension: %w", err)
	}

	summary := &ExtendSummary{Results: make([]ExtendResult, 0, len(list))}
	for i := range list {
		ser := &list[i]
		summary.Checked++

		n, err := s.Extend(ctx, ser)
		if err != nil {
			summary.Failed++
			appLog.Error("series extension failed", err, "series_id", ser.ID, "slug", ser.Slug)
			continue
		}
		summary.Created += n
		summary.Results = append(summary.Results, ExtendResult{
			SeriesID: ser.ID,
			Slug:     ser.Slug,
			Created:  n,
		})
	}

	appLog.Info("extension pass completed",
		"checked", summary.Checked,
		"created", summary.Created,
		"failed", summary.Failed,
	)
	return summary, nil
}
