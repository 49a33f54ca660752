package memstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iliyamo/ppv-access/internal/model"
)

// Seed is the JSON layout accepted by Load.  Field names follow the table
// columns so a seed can be written from a database export.
type Seed struct {
	Events []struct {
		ID                 string   `json:"id"`
		GeoBlockingEnabled bool     `json:"geo_blocking_enabled"`
		GeoLat             *float64 `json:"geo_lat"`
		GeoLng             *float64 `json:"geo_lng"`
		GeoRadiusKm        *float64 `json:"geo_radius_km"`
		CrewBypassToken    *string  `json:"crew_bypass_token"`
		MuxStreamID        *string  `json:"mux_stream_id"`
		MuxStreamKey       *string  `json:"mux_stream_key"`
		MuxPlaybackID      *string  `json:"mux_playback_id"`
	} `json:"events"`
	Purchases []struct {
		ID              string `json:"id"`
		EventID         string `json:"event_id"`
		Email           string `json:"email"`
		Status          string `json:"status"`
		StripeSessionID string `json:"stripe_session_id"`
	} `json:"purchases"`
}

// Load adds the events and purchases in r to the store.  Purchases must
// reference an event in the same seed or already in the store; a purchase
// without a status is completed.
func (s *Store) Load(r io.Reader) (events, purchases int, err error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return 0, 0, fmt.Errorf("decode seed: %w", err)
	}

	for i, e := range seed.Events {
		if strings.TrimSpace(e.ID) == "" {
			return 0, 0, fmt.Errorf("seed event %d: missing id", i)
		}
	}
	s.mu.Lock()
	known := make(map[string]bool, len(s.events)+len(seed.Events))
	for id := range s.events {
		known[id] = true
	}
	s.mu.Unlock()
	for _, e := range seed.Events {
		known[e.ID] = true
	}
	for i, p := range seed.Purchases {
		if p.ID == "" || p.Email == "" {
			return 0, 0, fmt.Errorf("seed purchase %d: id and email are required", i)
		}
		if !known[p.EventID] {
			return 0, 0, fmt.Errorf("seed purchase %s: unknown event %q", p.ID, p.EventID)
		}
	}

	for _, e := range seed.Events {
		s.PutEvent(model.Event{
			ID:                 e.ID,
			GeoBlockingEnabled: e.GeoBlockingEnabled,
			GeoLat:             e.GeoLat,
			GeoLng:             e.GeoLng,
			GeoRadiusKm:        e.GeoRadiusKm,
			CrewBypassToken:    e.CrewBypassToken,
			MuxStreamID:        e.MuxStreamID,
			MuxStreamKey:       e.MuxStreamKey,
			MuxPlaybackID:      e.MuxPlaybackID,
		})
	}
	for _, p := range seed.Purchases {
		status := p.Status
		if status == "" {
			status = model.PurchaseCompleted
		}
		s.PutPurchase(model.Purchase{
			ID:                p.ID,
			EventID:           p.EventID,
			Email:             p.Email,
			Status:            status,
			CheckoutSessionID: p.StripeSessionID,
		})
	}
	return len(seed.Events), len(seed.Purchases), nil
}

// LoadFile is Load on the file at path.
func (s *Store) LoadFile(path string) (events, purchases int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return s.Load(f)
}
