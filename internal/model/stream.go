package model

import "time"

// Stream status values.  Live status is reported by the video platform and
// cached on the row by the status poller.
const (
	StreamLive     = "live"
	StreamIdle     = "idle"
	StreamDisabled = "disabled"
)

// Stream is one named video feed ("Mat 1", "Main camera") of an event.  At
// most one stream per event carries IsDefault, and once an event has any
// streams exactly one does.
type Stream struct {
	ID           string    `json:"id"`          // streams.id (UUID)
	EventID      string    `json:"event_id"`    // streams.event_id
	Name         string    `json:"name"`        // streams.name
	Position     int       `json:"position"`    // streams.position, ascending display order
	IsDefault    bool      `json:"is_default"`  // streams.is_default
	Status       string    `json:"status"`      // streams.status (live, idle, disabled)
	MuxStreamID  string    `json:"-"`           // streams.mux_stream_id
	MuxStreamKey string    `json:"-"`           // streams.mux_stream_key (ingest credential)
	PlaybackID   string    `json:"playback_id"` // streams.mux_playback_id
	CreatedAt    time.Time `json:"created_at"`
}

// IsLive reports whether the platform last reported the feed as live.
func (s *Stream) IsLive() bool { return s.Status == StreamLive }

// LegacyStreamID is the identifier given to the synthetic stream built from
// an event's single-stream playback identifier.
const LegacyStreamID = "legacy"
