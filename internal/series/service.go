// Package series implements the materialization workflow for recurring
// event series: create a series with its initial batch of occurrences,
// and keep existing series generated far enough ahead by advancing their
// watermarks.
package series

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"seriesd/internal/localtime"
	appLog "seriesd/internal/log"
	"seriesd/internal/model"
	"seriesd/internal/recur"
	"seriesd/internal/slug"
)

// Clock supplies the current time. Threaded explicitly so tests can pin it.
type Clock func() time.Time

const (
	defaultHorizonMonths = 6
	defaultLeadMonths    = 2
	defaultSlugRetries   = 5
)

// Options configures a Service.
type Options struct {
	// Timezone is the single operational IANA zone series run in.
	Timezone string

	// HorizonMonths is how far ahead occurrences are materialized.
	HorizonMonths int

	// ExtendLeadMonths selects series for extension: any active series
	// whose watermark is within this many months of now.
	ExtendLeadMonths int

	// SlugRetries is the collision retry budget for series slugs.
	SlugRetries int

	// Now and Rand default to the wall clock and a time-seeded source.
	Now  Clock
	Rand *rand.Rand
}

// Service orchestrates rule validation, expansion, timezone conversion,
// slug assignment and persistence.
type Service struct {
	store Store
	loc   *time.Location

	horizonMonths int
	leadMonths    int
	slugRetries   int

	now Clock
	rnd *rand.Rand
}

// New builds a Service. The timezone must resolve against the system's
// timezone database.
func New(store Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("series: store is nil")
	}
	if opts.Timezone == "" {
		return nil, errors.New("series: timezone is empty")
	}
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("series: load timezone %q: %w", opts.Timezone, err)
	}

	s := &Service{
		store:         store,
		loc:           loc,
		horizonMonths: opts.HorizonMonths,
		leadMonths:    opts.ExtendLeadMonths,
		slugRetries:   opts.SlugRetries,
		now:           opts.Now,
		rnd:           opts.Rand,
	}
	if s.horizonMonths <= 0 {
		s.horizonMonths = defaultHorizonMonths
	}
	if s.leadMonths <= 0 {
		s.leadMonths = defaultLeadMonths
	}
	if s.slugRetries <= 0 {
		s.slugRetries = defaultSlugRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s, nil
}

// CreateInput is the request-level contract for creating a series.
type CreateInput struct {
	Rule       string
	AnchorDate string // "2006-01-02", local date
	Until      string // optional "2006-01-02", inclusive
	Count      int    // optional; 0 means unbounded

	StartTime       string // "HH:MM:SS" local wall clock
	DurationMinutes int

	Defaults model.SeriesDefaults
}

// CreateResult describes a successfully created series. GeneratedUntil
// is zero when the watermark write failed; only persisted values are
// reported.
type CreateResult struct {
	ID             uuid.UUID
	Slug           string
	Occurrences    int
	GeneratedUntil time.Time
}

// Create runs the full workflow: validate, expand the initial window,
// persist the series (with slug collision retry), persist the occurrence
// batch, then advance the watermark.
//
// Failure behavior:
//   - validation/expansion errors: nothing persisted.
//   - slug retries exhausted: ErrSlugExhausted, nothing persisted.
//   - occurrence persistence failure: the just-created series row is
//     deleted again (compensating action) and the error returned.
//   - watermark failure: logged only; the series and occurrences stand,
//     and the next extension pass recovers.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	spec, tod, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	nowLocal := s.now().In(s.loc)
	windowEnd := nowLocal.AddDate(0, s.horizonMonths, 0)
	if windowEnd.Before(spec.AnchorDate) {
		// A far-future anchor still materializes its first occurrence.
		windowEnd = spec.AnchorDate
	}

	dates, err := recur.Expand(spec, spec.AnchorDate, windowEnd, s.loc, 0)
	if err != nil {
		return nil, &ExpansionError{Reason: "cannot expand rule", Err: err}
	}
	if len(dates) == 0 {
		return nil, &ExpansionError{Reason: "rule produces no occurrences in range"}
	}

	ser := &model.Series{
		Recurrence:      spec,
		Defaults:        in.Defaults,
		LocalStart:      tod.String(),
		DurationMinutes: in.DurationMinutes,
		Timezone:        s.loc.String(),
		Active:          true,
		CreatedAt:       s.now().UTC(),
		UpdatedAt:       s.now().UTC(),
	}

	if err := s.insertWithSlugRetry(ctx, ser); err != nil {
		return nil, err
	}

	rows := s.buildOccurrences(ser, tod, dates)
	if err := s.store.InsertOccurrences(ctx, rows); err != nil {
		// A series with zero occurrences is meaningless downstream; roll
		// the series row back rather than leave it orphaned.
		if delErr := s.store.DeleteSeries(ctx, ser.ID); delErr != nil {
			appLog.Error("compensating series delete failed", delErr,
				"series_id", ser.ID, "slug", ser.Slug)
		}
		return nil, fmt.Errorf("persist occurrences: %w", err)
	}

	watermark := recur.AtNoon(windowEnd, s.loc).UTC()
	var generatedUntil time.Time
	if err := s.store.UpdateWatermark(ctx, ser.ID, watermark); err != nil {
		// Not fatal: the watermark is only advanced after the batch is
		// confirmed, so the next extension run starts from the old value
		// and, by construction, re-emits nothing. The result reports no
		// watermark rather than a value that was never persisted.
		appLog.Warn("watermark advance failed; next extension recovers",
			"series_id", ser.ID, "err", err)
	} else {
		generatedUntil = watermark
	}

	appLog.Info("series created",
		"series_id", ser.ID,
		"slug", ser.Slug,
		"occurrences", len(rows),
		"generated_until", watermark.Format(time.RFC3339),
	)

	return &CreateResult{
		ID:             ser.ID,
		Slug:           ser.Slug,
		Occurrences:    len(rows),
		GeneratedUntil: generatedUntil,
	}, nil
}

// insertWithSlugRetry persists the series, regenerating the slug with a
// strictly longer random suffix on each uniqueness violation. Insert-and-
// retry (rather than check-then-insert) keeps concurrent creations with
// the same title race-free.
func (s *Service) insertWithSlugRetry(ctx context.Context, ser *model.Series) error {
	base := slug.Base(ser.Defaults.Title)
	for attempt := 0; attempt < s.slugRetries; attempt++ {
		ser.ID = uuid.New()
		ser.Slug = slug.WithSuffix(base, s.rnd, slug.InitialSuffixLength+attempt)

		err := s.store.InsertSeries(ctx, ser)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDuplicate) {
			appLog.Warn("series slug collision, retrying",
				"slug", ser.Slug, "attempt", attempt+1)
			continue
		}
		return fmt.Errorf("persist series: %w", err)
	}
	return ErrSlugExhausted
}

func (s *Service) buildOccurrences(ser *model.Series, tod localtime.TimeOfDay, dates []time.Time) []model.Occurrence {
	rows := make([]model.Occurrence, 0, len(dates))
	for _, d := range dates {
		start, end, err := localtime.Range(d, tod, ser.DurationMinutes, s.loc)
		if err != nil {
			// Duration was validated positive at creation; unreachable.
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
			IsException:  false,
			CreatedAt:    s.now().UTC(),
		})
	}
	return rows
}

func (s *Service) validate(in CreateInput) (model.RecurrenceSpec, localtime.TimeOfDay, error) {
	var spec model.RecurrenceSpec
	var tod localtime.TimeOfDay

	if in.Defaults.Title == "" {
		return spec, tod, &ValidationError{Field: "title", Reason: "required"}
	}
	if in.DurationMinutes <= 0 {
		return spec, tod, &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}

	tod, err := localtime.Parse(in.StartTime)
	if err != nil {
		return spec, tod, &ValidationError{Field: "start_time", Reason: err.Error()}
	}

	if in.AnchorDate == "" {
		return spec, tod, &ValidationError{Field: "anchor_date", Reason: "required"}
	}
	anchor, err := time.ParseInLocation("2006-01-02", in.AnchorDate, s.loc)
	if err != nil {
		return spec, tod, &ValidationError{Field: "anchor_date", Reason: "expected YYYY-MM-DD"}
	}

	if in.Until != "" && in.Count > 0 {
		return spec, tod, &ValidationError{Field: "until", Reason: "until and count are mutually exclusive"}
	}
	if in.Count < 0 {
		return spec, tod, &ValidationError{Field: "count", Reason: "must not be negative"}
	}

	var until *time.Time
	if in.Until != "" {
		u, err := time.ParseInLocation("2006-01-02", in.Until, s.loc)
		if err != nil {
			return spec, tod, &ValidationError{Field: "until", Reason: "expected YYYY-MM-DD"}
		}
		if u.Before(anchor) {
			return spec, tod, &ValidationError{Field: "until", Reason: "before anchor date"}
		}
		until = &u
	}

	if err := recur.ValidateRule(in.Rule); err != nil {
		return spec, tod, &ValidationError{Field: "rule", Reason: err.Error()}
	}

	spec = model.RecurrenceSpec{
		Rule:       in.Rule,
		AnchorDate: anchor,
		Until:      until,
		Count:      in.Count,
	}
	return spec, tod, nil
}

// GetBySlug returns the series descriptor for a slug.
func (s *Service) GetBySlug(ctx context.Context, slugStr string) (*model.Series, error) {
	return s.store.GetSeriesBySlug(ctx, slugStr)
}

// Occurrences returns a series' generated occurrences in ascending
// instance-date order.
func (s *Service) Occurrences(ctx context.Context, seriesID uuid.UUID) ([]model.Occurrence, error) {
	return s.store.ListOccurrences(ctx, seriesID)
}
