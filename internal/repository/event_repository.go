package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
)

const (
	selectEventSQL = `SELECT id, geo_blocking_enabled, geo_lat, geo_lng, geo_radius_km, is_multi_stream,
       crew_bypass_token, bypass_created_at, mux_stream_id, mux_stream_key, mux_playback_id
FROM events WHERE id = ?`
	setBypassSQL   = `UPDATE events SET crew_bypass_token = ?, bypass_created_at = ? WHERE id = ?`
	updateGeoSQL   = `UPDATE events SET geo_blocking_enabled = ?, geo_lat = ?, geo_lng = ?, geo_radius_km = ? WHERE id = ?`
	eventExistsSQL = `SELECT 1 FROM events WHERE id = ?`
)

// EventRepo reads the access-control columns of events and applies the
// admin mutations the access flow owns (geo settings, bypass token).
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e                               model.Event
		lat, lng, radius                sql.NullFloat64
		bypass, muxID, muxKey, playback sql.NullString
		bypassAt                        sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.GeoBlockingEnabled, &lat, &lng, &radius, &e.IsMultiStream,
		&bypass, &bypassAt, &muxID, &muxKey, &playback); err != nil {
		return nil, err
	}
	e.GeoLat = nullFloat(lat)
	e.GeoLng = nullFloat(lng)
	e.GeoRadiusKm = nullFloat(radius)
	e.CrewBypassToken = nullString(bypass)
	e.MuxStreamID = nullString(muxID)
	e.MuxStreamKey = nullString(muxKey)
	e.MuxPlaybackID = nullString(playback)
	if bypassAt.Valid {
		t := bypassAt.Time.UTC()
		e.BypassCreatedAt = &t
	}
	return &e, nil
}

// GetEvent loads an event by id.  It returns ErrEventNotFound when there
// is no matching row.
func (r *EventRepo) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, selectEventSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// SetBypassToken replaces the event's bypass token and issuance time in a
// single statement, so the previous token stops validating the moment the
// update commits.  A nil token clears it.
func (r *EventRepo) SetBypassToken(ctx context.Context, id string, token *string, issuedAt *time.Time) error {
	var at any
	if issuedAt != nil {
		at = issuedAt.UTC()
	}
	var tok any
	if token != nil {
		tok = *token
	}
	res, err := r.db.ExecContext(ctx, setBypassSQL, tok, at, id)
	if err != nil {
		return err
	}
	return r.requireRow(ctx, res, id)
}

// UpdateGeo stores the admin geo-blocking settings for an event.
func (r *EventRepo) UpdateGeo(ctx context.Context, id string, g model.GeoSettings) error {
	res, err := r.db.ExecContext(ctx, updateGeoSQL, g.Enabled, floatArg(g.Lat), floatArg(g.Lng), floatArg(g.RadiusKm), id)
	if err != nil {
		return err
	}
	return r.requireRow(ctx, res, id)
}

// requireRow distinguishes "no such event" from "value unchanged": MySQL
// reports zero affected rows for both.
func (r *EventRepo) requireRow(ctx context.Context, res sql.Result, id string) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err := r.db.QueryRowContext(ctx, eventExistsSQL, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	return err
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
