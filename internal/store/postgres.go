// Package store persists series and their generated occurrences in
// Postgres via pgx. It implements the series.Store contract.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	appLog "seriesd/internal/log"
	"seriesd/internal/model"
	"seriesd/internal/series"
)

// Postgres is a pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies the connection with a short
// ping before returning.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	// Fail fast at startup.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate applies the schema. Safe to run on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const insertSeriesSQL = `
INSERT INTO series (
    id, slug, title, description, rule, anchor_date, until_date,
    occurrence_count, local_start, duration_minutes, timezone,
    location_name, location_address, latitude, longitude, online_url,
    capacity, price_type, image_url, creator_id, organizer_id, tribe_id,
    venue_id, generated_until, active, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
    $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
)`

func (p *Postgres) InsertSeries(ctx context.Context, s *model.Series) error {
	var count *int
	if s.Recurrence.Count > 0 {
		count = &s.Recurrence.Count
	}

	_, err := p.pool.Exec(ctx, insertSeriesSQL,
		s.ID, s.Slug,
		s.Defaults.Title, s.Defaults.Description,
		s.Recurrence.Rule, s.Recurrence.AnchorDate, s.Recurrence.Until, count,
		s.LocalStart, s.DurationMinutes, s.Timezone,
		s.Defaults.LocationName, s.Defaults.LocationAddress,
		s.Defaults.Latitude, s.Defaults.Longitude, s.Defaults.OnlineURL,
		s.Defaults.Capacity, s.Defaults.PriceType, s.Defaults.ImageURL,
		s.Defaults.CreatorID, s.Defaults.OrganizerID, s.Defaults.TribeID,
		s.Defaults.VenueID,
		s.GeneratedUntil, s.Active, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert series %q: %w", s.Slug, series.ErrDuplicate)
		}
		return fmt.Errorf("insert series %q: %w", s.Slug, err)
	}
	return nil
}

const insertOccurrenceSQL = `
INSERT INTO events (
    id, series_id, slug, title, description, location_name,
    location_address, latitude, longitude, online_url, capacity,
    price_type, image_url, creator_id, organizer_id, tribe_id, venue_id,
    instance_date, starts_at, ends_at, is_exception, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
    $16, $17, $18, $19, $20, $21, $22
)`

// InsertOccurrences writes the batch in a single transaction: either all
// rows land or none do.
func (p *Postgres) InsertOccurrences(ctx context.Context, rows []model.Occurrence) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			appLog.Error("occurrence insert rollback failed", err)
		}
	}()

	batch := &pgx.Batch{}
	for _, o := range rows {
		batch.Queue(insertOccurrenceSQL,
			o.ID, o.SeriesID, o.Slug,
			o.Defaults.Title, o.Defaults.Description,
			o.Defaults.LocationName, o.Defaults.LocationAddress,
			o.Defaults.Latitude, o.Defaults.Longitude, o.Defaults.OnlineURL,
			o.Defaults.Capacity, o.Defaults.PriceType, o.Defaults.ImageURL,
			o.Defaults.CreatorID, o.Defaults.OrganizerID, o.Defaults.TribeID,
			o.Defaults.VenueID,
			o.InstanceDate, o.StartsAt, o.EndsAt, o.IsException, o.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("insert occurrences: %w", series.ErrDuplicate)
			}
			return fmt.Errorf("insert occurrences: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit occurrences: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateWatermark(ctx context.Context, seriesID uuid.UUID, watermark time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE series SET generated_until = $2, updated_at = now() WHERE id = $1`,
		seriesID, watermark,
	)
	if err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update watermark for %s: %w", seriesID, series.ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteSeries(ctx context.Context, seriesID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM series WHERE id = $1`, seriesID); err != nil {
		return fmt.Errorf("delete series %s: %w", seriesID, err)
	}
	return nil
}

const selectSeriesSQL = `
SELECT id, slug, title, description, rule, anchor_date, until_date,
       occurrence_count, local_start, duration_minutes, timezone,
       location_name, location_address, latitude, longitude, online_url,
       capacity, price_type, image_url, creator_id, organizer_id,
       tribe_id, venue_id, generated_until, active, created_at, updated_at
FROM series`

func (p *Postgres) GetSeriesBySlug(ctx context.Context, slug string) (*model.Series, error) {
	row := p.pool.QueryRow(ctx, selectSeriesSQL+` WHERE slug = $1`, slug)
	s, err := scanSeries(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("series %q: %w", slug, series.ErrNotFound)
		}
		return nil, fmt.Errorf("get series %q: %w", slug, err)
	}
	return s, nil
}

func (p *Postgres) ListSeriesDueForExtension(ctx context.Context, dueBefore time.Time) ([]model.Series, error) {
	rows, err := p.pool.Query(ctx,
		selectSeriesSQL+` WHERE active AND (generated_until IS NULL OR generated_until < $1) ORDER BY created_at`,
		dueBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list due series: %w", err)
	}
	defer rows.Close()

	var out []model.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due series: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSeries(row pgx.Row) (*model.Series, error) {
	var s model.Series
	var count *int
	err := row.Scan(
		&s.ID, &s.Slug,
		&s.Defaults.Title, &s.Defaults.Description,
		&s.Recurrence.Rule, &s.Recurrence.AnchorDate, &s.Recurrence.Until, &count,
		&s.LocalStart, &s.DurationMinutes, &s.Timezone,
		&s.Defaults.LocationName, &s.Defaults.LocationAddress,
		&s.Defaults.Latitude, &s.Defaults.Longitude, &s.Defaults.OnlineURL,
		&s.Defaults.Capacity, &s.Defaults.PriceType, &s.Defaults.ImageURL,
		&s.Defaults.CreatorID, &s.Defaults.OrganizerID, &s.Defaults.TribeID,
		&s.Defaults.VenueID,
		&s.GeneratedUntil, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if count != nil {
		s.Recurrence.Count = *count
	}
	return &s, nil
}

const selectOccurrenceSQL = `
SELECT id, series_id, slug, title, description, location_name,
       location_address, latitude, longitude, online_url, capacity,
       price_type, image_url, creator_id, organizer_id, tribe_id,
       venue_id, instance_date, starts_at, ends_at, is_exception,
       created_at
FROM events`

// ListOccurrences returns a series' occurrences ordered by instance date,
// so "first occurrence" consumers always see the earliest date first.
func (p *Postgres) ListOccurrences(ctx context.Context, seriesID uuid.UUID) ([]model.Occurrence, error) {
	rows, err := p.pool.Query(ctx,
		selectOccurrenceSQL+` WHERE series_id = $1 ORDER BY instance_date`,
		seriesID,
	)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var out []model.Occurrence
	for rows.Next() {
		var o model.Occurrence
		if err := rows.Scan(
			&o.ID, &o.SeriesID, &o.Slug,
			&o.Defaults.Title, &o.Defaults.Description,
			&o.Defaults.LocationName, &o.Defaults.LocationAddress,
			&o.Defaults.Latitude, &o.Defaults.Longitude, &o.Defaults.OnlineURL,
			&o.Defaults.Capacity, &o.Defaults.PriceType, &o.Defaults.ImageURL,
			&o.Defaults.CreatorID, &o.Defaults.OrganizerID, &o.Defaults.TribeID,
			&o.Defaults.VenueID,
			&o.InstanceDate, &o.StartsAt, &o.EndsAt, &o.IsException,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestInstanceDate(ctx context.Context, seriesID uuid.UUID) (time.Time, bool, error) {
	var latest *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT max(instance_date) FROM events WHERE series_id = $1`,
		seriesID,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest instance date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
