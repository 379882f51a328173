// Package web exposes the HTTP API: series creation, lookups, occurrence
// listings, iCalendar feeds and a manual extension trigger.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"seriesd/internal/config"
	"seriesd/internal/feed"
	appLog "seriesd/internal/log"
	"seriesd/internal/model"
	"seriesd/internal/series"
)

// Server provides the HTTP API for series management.
type Server struct {
	cfg *config.Config
	svc *series.Service
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *series.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="seriesd", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, svc *series.Service) error {
	s := NewServer(cfg, svc)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	s.mux.HandleFunc("POST /api/series/extend", s.handleExtend)
	s.mux.HandleFunc("GET /api/series/{slug}", s.handleGetSeries)
	s.mux.HandleFunc("GET /api/series/{slug}/occurrences", s.handleListOccurrences)
	s.mux.HandleFunc("GET /api/series/{slug}/feed.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// createSeriesRequest is the JSON request shape for POST /api/series.
type createSeriesRequest struct {
	Rule       string `json:"rule"`
	AnchorDate string `json:"anchor_date"`
	Until      string `json:"until,omitempty"`
	Count      int    `json:"count,omitempty"`

	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	LocationName    string  `json:"location_name,omitempty"`
	LocationAddress string  `json:"location_address,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	OnlineURL       string  `json:"online_url,omitempty"`

	Capacity  int    `json:"capacity,omitempty"`
	PriceType string `json:"price_type,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`

	CreatorID   string `json:"creator_id,omitempty"`
	OrganizerID string `json:"organizer_id,omitempty"`
	TribeID     string `json:"tribe_id,omitempty"`
	VenueID     string `json:"venue_id,omitempty"`
}

type createSeriesResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Occurrences int    `json:"occurrences"`

	// Omitted when the watermark write failed; the value always matches
	// what a follow-up GET would report.
	GeneratedUntil *time.Time `json:"generated_until,omitempty"`
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req createSeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.svc.Create(r.Context(), series.CreateInput{
		Rule:            req.Rule,
		AnchorDate:      req.AnchorDate,
		Until:           req.Until,
		Count:           req.Count,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Defaults: model.SeriesDefaults{
			Title:           req.Title,
			Description:     req.Description,
			LocationName:    req.LocationName,
			LocationAddress: req.LocationAddress,
			Latitude:        req.Latitude,
			Longitude:       req.Longitude,
			OnlineURL:       req.OnlineURL,
			Capacity:        req.Capacity,
			PriceType:       req.PriceType,
			ImageURL:        req.ImageURL,
			CreatorID:       req.CreatorID,
			OrganizerID:     req.OrganizerID,
			TribeID:         req.TribeID,
			VenueID:         req.VenueID,
		},
	})
	if err != nil {
		writeSeriesError(w, err)
		return
	}

	resp := createSeriesResponse{
		ID:          res.ID.String(),
		Slug:        res.Slug,
		Occurrences: res.Occurrences,
	}
	if !res.GeneratedUntil.IsZero() {
		resp.GeneratedUntil = &res.GeneratedUntil
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.ExtendDue(r.Context())
	if err != nil {
		appLog.Error("manual extension pass failed", err)
		writeError(w, http.StatusInternalServerError, "extension failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// seriesDTO is the JSON view of a series descriptor.
type seriesDTO struct {
	ID             string     `json:"id"`
	Slug           string     `json:"slug"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Rule           string     `json:"rule"`
	AnchorDate     string     `json:"anchor_date"`
	Until          string     `json:"until,omitempty"`
	Count          int        `json:"count,omitempty"`
	StartTime      string     `json:"start_time"`
	DurationMin    int        `json:"duration_minutes"`
	Timezone       string     `json:"timezone"`
	GeneratedUntil *time.Time `json:"generated_until,omitempty"`
	Active         bool       `json:"active"`
}

func seriesToDTO(ser *model.Series) seriesDTO {
	dto := seriesDTO{
		ID:             ser.ID.String(),
		Slug:           ser.Slug,
		Title:          ser.Defaults.Title,
		Description:    ser.Defaults.Description,
		Rule:           ser.Recurrence.Rule,
		AnchorDate:     ser.Recurrence.AnchorDate.Format("2006-01-02"),
		Count:          ser.Recurrence.Count,
		StartTime:      ser.LocalStart,
		DurationMin:    ser.DurationMinutes,
		Timezone:       ser.Timezone,
		GeneratedUntil: ser.GeneratedUntil,
		Active:         ser.Active,
	}
	if ser.Recurrence.Until != nil {
		dto.Until = ser.Recurrence.Until.Format("2006-01-02")
	}
	return dto
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	ser, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seriesToDTO(ser))
}

// occurrenceDTO is the JSON view of a single generated instance.
type occurrenceDTO struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	InstanceDate string    `json:"instance_date"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	IsException  bool      `json:"is_exception"`
}

func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	ser, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}

	occs, err := s.svc.Occurrences(r.Context(), ser.ID)
	if err != nil {
		appLog.Error("list occurrences failed", err, "slug", ser.Slug)
		writeError(w, http.StatusInternalServerError, "failed to list occurrences")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(occs))
	for _, occ := range occs {
		dtos = append(dtos, occurrenceDTO{
			ID:           occ.ID.String(),
			Slug:         occ.Slug,
			InstanceDate: occ.InstanceDate.Format("2006-01-02"),
			StartsAt:     occ.StartsAt,
			EndsAt:       occ.EndsAt,
			IsException:  occ.IsException,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series":      ser.Slug,
		"occurrences": dtos,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ser, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}

	occs, err := s.svc.Occurrences(r.Context(), ser.ID)
	if err != nil {
		appLog.Error("feed occurrences failed", err, "slug", ser.Slug)
		writeError(w, http.StatusInternalServerError, "failed to build feed")
		return
	}

	w.Header().Set("Content-Type", feed.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed.Build(ser, occs)))
}

func (s *Server) lookupSeries(w http.ResponseWriter, r *http.Request) (*model.Series, bool) {
	slug := r.PathValue("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing series slug")
		return nil, false
	}
	ser, err := s.svc.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, series.ErrNotFound) {
			writeError(w, http.StatusNotFound, "series not found")
			return nil, false
		}
		appLog.Error("series lookup failed", err, "slug", slug)
		writeError(w, http.StatusInternalServerError, "series lookup failed")
		return nil, false
	}
	return ser, true
}

// writeSeriesError maps workflow errors onto HTTP statuses: validation and
// expansion problems are the caller's to fix, slug exhaustion is a
// retryable conflict, anything else is a server-side failure.
func writeSeriesError(w http.ResponseWriter, err error) {
	var vErr *series.ValidationError
	var eErr *series.ExpansionError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &eErr):
		writeError(w, http.StatusBadRequest, eErr.Error())
	case errors.Is(err, series.ErrSlugExhausted):
		writeError(w, http.StatusConflict, "could not allocate a unique slug; try a different title")
	default:
		appLog.Error("series creation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to create series")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
