package model

import "time"

// DefaultGeoRadiusKm is the blackout radius applied when an event has
// geo-blocking enabled but no radius configured.
const DefaultGeoRadiusKm = 50.0

// Event is the access-control view of a paid livestream event.  Only the
// columns consumed by the access flow are mapped; the rest of the events
// table belongs to the admin side of the platform.
//
// Fields:
//
//	ID                 – events.id (UUID).
//	GeoBlockingEnabled – whether viewers near the venue are blacked out.
//	GeoLat / GeoLng    – venue coordinate (nullable).
//	GeoRadiusKm        – blackout radius (nullable, see RadiusKm).
//	IsMultiStream      – event serves its feeds from the streams table.
//	CrewBypassToken    – per-event secret that overrides geo-blocking.
//	BypassCreatedAt    – when the current bypass token was issued.
//	MuxStreamID/Key    – legacy single-stream ingest identifiers.
//	MuxPlaybackID      – legacy single-stream playback identifier.
type Event struct {
	ID                 string     `json:"id"`                   // events.id
	GeoBlockingEnabled bool       `json:"geo_blocking_enabled"` // events.geo_blocking_enabled
	GeoLat             *float64   `json:"geo_lat"`              // events.geo_lat
	GeoLng             *float64   `json:"geo_lng"`              // events.geo_lng
	GeoRadiusKm        *float64   `json:"geo_radius_km"`        // events.geo_radius_km
	IsMultiStream      bool       `json:"is_multi_stream"`      // events.is_multi_stream
	CrewBypassToken    *string    `json:"-"`                    // events.crew_bypass_token
	BypassCreatedAt    *time.Time `json:"bypass_created_at"`    // events.bypass_created_at
	MuxStreamID        *string    `json:"-"`                    // events.mux_stream_id
	MuxStreamKey       *string    `json:"-"`                    // events.mux_stream_key
	MuxPlaybackID      *string    `json:"mux_playback_id"`      // events.mux_playback_id
}

// RadiusKm returns the configured blackout radius or DefaultGeoRadiusKm.
func (e *Event) RadiusKm() float64 {
	if e.GeoRadiusKm == nil || *e.GeoRadiusKm <= 0 {
		return DefaultGeoRadiusKm
	}
	return *e.GeoRadiusKm
}

// HasVenue reports whether a venue coordinate is stored for the event.
func (e *Event) HasVenue() bool {
	return e.GeoLat != nil && e.GeoLng != nil
}

// HasLegacyStream reports whether the event still carries a single-stream
// playback identifier on its own row.
func (e *Event) HasLegacyStream() bool {
	return e.MuxPlaybackID != nil && *e.MuxPlaybackID != ""
}

// GeoSettings is the admin-mutable subset of the event geo fields.
type GeoSettings struct {
	Enabled  bool     `json:"enabled"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	RadiusKm *float64 `json:"radius_km"`
}
