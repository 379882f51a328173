package store

// schemaSQL creates the series/events tables. Kept idempotent so Migrate
// can run unconditionally at startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS series (
    id               UUID PRIMARY KEY,
    slug             TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    rule             TEXT NOT NULL,
    anchor_date      DATE NOT NULL,
    until_date       DATE,
    occurrence_count INTEGER,
    local_start      TEXT NOT NULL,
    duration_minutes INTEGER NOT NULL,
    timezone         TEXT NOT NULL,
    location_name    TEXT NOT NULL DEFAULT '',
    location_address TEXT NOT NULL DEFAULT '',
    latitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
    longitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
    online_url       TEXT NOT NULL DEFAULT '',
    capacity         INTEGER NOT NULL DEFAULT 0,
    price_type       TEXT NOT NULL DEFAULT '',
    image_url        TEXT NOT NULL DEFAULT '',
    creator_id       TEXT NOT NULL DEFAULT '',
    organizer_id     TEXT NOT NULL DEFAULT '',
    tribe_id         TEXT NOT NULL DEFAULT '',
    venue_id         TEXT NOT NULL DEFAULT '',
    generated_until  TIMESTAMPTZ,
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
    id               UUID PRIMARY KEY,
    series_id        UUID NOT NULL REFERENCES series(id) ON DELETE CASCADE,
    slug             TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    location_name    TEXT NOT NULL DEFAULT '',
    location_address TEXT NOT NULL DEFAULT '',
    latitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
    longitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
    online_url       TEXT NOT NULL DEFAULT '',
    capacity         INTEGER NOT NULL DEFAULT 0,
    price_type       TEXT NOT NULL DEFAULT '',
    image_url        TEXT NOT NULL DEFAULT '',
    creator_id       TEXT NOT NULL DEFAULT '',
    organizer_id     TEXT NOT NULL DEFAULT '',
    tribe_id         TEXT NOT NULL DEFAULT '',
    venue_id         TEXT NOT NULL DEFAULT '',
    instance_date    DATE NOT NULL,
    starts_at        TIMESTAMPTZ NOT NULL,
    ends_at          TIMESTAMPTZ NOT NULL,
    is_exception     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (series_id, instance_date)
);

CREATE INDEX IF NOT EXISTS idx_events_series_date ON events (series_id, instance_date);
CREATE INDEX IF NOT EXISTS idx_series_generated_until ON series (generated_until) WHERE active;
`
