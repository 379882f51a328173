package series

import (
	"context"
	"time"

	"github.com/google/uuid"

	"seriesd/internal/model"
)

// Store is the persistence contract the workflow runs against. Errors
// from inserts that hit a uniqueness constraint must match ErrDuplicate
// via errors.Is; lookups for missing rows must match ErrNotFound.
type Store interface {
	// InsertSeries persists a new series row, including its slug.
	InsertSeries(ctx context.Context, s *model.Series) error

	// InsertOccurrences persists a batch of occurrence rows atomically:
	// either every row is inserted or none are.
	InsertOccurrences(ctx context.Context, rows []model.Occurrence) error

	// UpdateWatermark advances generated_until for the series.
	UpdateWatermark(ctx context.Context, seriesID uuid.UUID, watermark time.Time) error

	// DeleteSeries removes a series and (by cascade) its occurrences.
	// Used as the compensating action when occurrence persistence fails.
	DeleteSeries(ctx context.Context, seriesID uuid.UUID) error

	GetSeriesBySlug(ctx context.Context, slug string) (*model.Series, error)

	// ListOccurrences returns a series' occurrences in ascending
	// instance-date order.
	ListOccurrences(ctx context.Context, seriesID uuid.UUID) ([]model.Occurrence, error)

	// LatestInstanceDate returns the newest instance_date persisted for
	// the series; ok is false when no occurrences exist.
	LatestInstanceDate(ctx context.Context, seriesID uuid.UUID) (latest time.Time, ok bool, err error)

	// ListSeriesDueForExtension returns active series whose watermark is
	// null or before dueBefore.
	ListSeriesDueForExtension(ctx context.Context, dueBefore time.Time) ([]model.Series, error)
}
