package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"seriesd/internal/config"
	"seriesd/internal/model"
	"seriesd/internal/series"
)

// memStore is a minimal in-memory series.Store for handler tests.
type memStore struct {
	mu     sync.Mutex
	series map[uuid.UUID]model.Series
	bySlug map[string]uuid.UUID
	occs   map[uuid.UUID][]model.Occurrence
}

func newMemStore() *memStore {
	return &memStore{
		series: make(map[uuid.UUID]model.Series),
		bySlug: make(map[string]uuid.UUID),
		occs:   make(map[uuid.UUID][]model.Occurrence),
	}
}

func (m *memStore) InsertSeries(_ context.Context, s *model.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.bySlug[s.Slug]; taken {
		return fmt.Errorf("insert series: %w", series.ErrDuplicate)
	}
	m.series[s.ID] = *s
	m.bySlug[s.Slug] = s.ID
	return nil
}

func (m *memStore) InsertOccurrences(_ context.Context, rows []model.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range rows {
		m.occs[o.SeriesID] = append(m.occs[o.SeriesID], o)
	}
	return nil
}

func (m *memStore) UpdateWatermark(_ context.Context, seriesID uuid.UUID, watermark time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[seriesID]
	if !ok {
		return series.ErrNotFound
	}
	s.GeneratedUntil = &watermark
	m.series[seriesID] = s
	return nil
}

func (m *memStore) DeleteSeries(_ context.Context, seriesID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.series[seriesID]; ok {
		delete(m.bySlug, s.Slug)
		delete(m.series, seriesID)
		delete(m.occs, seriesID)
	}
	return nil
}

func (m *memStore) GetSeriesBySlug(_ context.Context, slug string) (*model.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", slug, series.ErrNotFound)
	}
	s := m.series[id]
	return &s, nil
}

func (m *memStore) ListOccurrences(_ context.Context, seriesID uuid.UUID) ([]model.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Occurrence(nil), m.occs[seriesID]...), nil
}

func (m *memStore) LatestInstanceDate(_ context.Context, seriesID uuid.UUID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, o := range m.occs[seriesID] {
		if o.InstanceDate.After(latest) {
			latest = o.InstanceDate
		}
	}
	return latest, !latest.IsZero(), nil
}

func (m *memStore) ListSeriesDueForExtension(_ context.Context, dueBefore time.Time) ([]model.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Series
	for _, s := range m.series {
		if s.Active && (s.GeneratedUntil == nil || s.GeneratedUntil.Before(dueBefore)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	svc, err := series.New(newMemStore(), series.Options{
		Timezone:      "America/New_York",
		HorizonMonths: 6,
		Now:           func() time.Time { return time.Date(2025, time.January, 10, 9, 0, 0, 0, loc) },
		Rand:          rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)
	return NewServer(cfg, svc)
}

func createBody() []byte {
	b, _ := json.Marshal(map[string]any{
		"rule":             "FREQ=WEEKLY;BYDAY=TU",
		"anchor_date":      "2025-01-14",
		"start_time":       "19:00:00",
		"duration_minutes": 120,
		"title":            "Salsa Social",
		"location_name":    "Riverside Hall",
	})
	return b
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestCreateSeriesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/series", createBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createSeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	require.NotEmpty(t, resp.Slug)
	require.Equal(t, 26, resp.Occurrences)
	require.NotNil(t, resp.GeneratedUntil)

	// The created series is retrievable and carries its watermark.
	rec = doRequest(s, http.MethodGet, "/api/series/"+resp.Slug, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto seriesDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	require.Equal(t, "FREQ=WEEKLY;BYDAY=TU", dto.Rule)
	require.NotNil(t, dto.GeneratedUntil)

	rec = doRequest(s, http.MethodGet, "/api/series/"+resp.Slug+"/occurrences", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/series/"+resp.Slug+"/feed.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	require.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
}

func TestCreateSeriesValidationFailure(t *testing.T) {
	s := newTestServer(t, nil)

	body, _ := json.Marshal(map[string]any{
		"rule":             "FREQ=DAILY;UNTIL=20250601T000000Z;COUNT=5",
		"anchor_date":      "2025-01-14",
		"start_time":       "19:00:00",
		"duration_minutes": 120,
		"title":            "Broken",
	})
	rec := doRequest(s, http.MethodPost, "/api/series", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "error")
}

func TestCreateSeriesBadJSON(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodPost, "/api/series", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownSeries(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodGet, "/api/series/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtendEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodPost, "/api/series/extend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "checked")
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s := newTestServer(t, cfg)

	// /health stays open.
	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// API requires credentials.
	rec = doRequest(s, http.MethodPost, "/api/series", createBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/series", bytes.NewReader(createBody()))
	req.SetBasicAuth("admin", "secret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	require.Equal(t, http.StatusCreated, ok.Code)
}
