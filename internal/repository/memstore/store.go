// Package memstore is an in-process implementation of the event, stream,
// purchase and session stores.  It backs STORE_DRIVER=memory for local
// development, seeded from MEMORY_SEED_PATH, and is the session fallback
// when Redis is unreachable.  It
// enforces the same invariants as the MySQL and Redis stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/repository"
)

// Store holds all records behind one mutex.  Every method is a single
// critical section, which gives each operation the atomicity the SQL
// transactions and Lua scripts provide in the networked stores.
type Store struct {
	mu         sync.Mutex
	events     map[string]model.Event
	streams    map[string]model.Stream
	purchases  []model.Purchase
	sessions   map[string]model.Session
	byPurchase map[string]string
	expiresAt  map[string]time.Time
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:     map[string]model.Event{},
		streams:    map[string]model.Stream{},
		sessions:   map[string]model.Session{},
		byPurchase: map[string]string{},
		expiresAt:  map[string]time.Time{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for record retention.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

// PutPurchase records a purchase.
func (s *Store) PutPurchase(p model.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Email = repository.NormalizeEmail(p.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.purchases = append(s.purchases, p)
}

// --- events ---

func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &e, nil
}

func (s *Store) SetBypassToken(_ context.Context, id string, token *string, issuedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	e.CrewBypassToken = token
	e.BypassCreatedAt = issuedAt
	s.events[id] = e
	return nil
}

func (s *Store) UpdateGeo(_ context.Context, id string, g model.GeoSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return repository.ErrEventNotFound
	}
	e.GeoBlockingEnabled = g.Enabled
	e.GeoLat, e.GeoLng, e.GeoRadiusKm = g.Lat, g.Lng, g.RadiusKm
	s.events[id] = e
	return nil
}

// --- streams ---

func (s *Store) eventStreams(eventID string) []model.Stream {
	var out []model.Stream
	for _, st := range s.streams {
		if st.EventID == eventID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) AddStream(_ context.Context, st *model.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[st.EventID]
	if !ok {
		return repository.ErrEventNotFound
	}
	existing := s.eventStreams(st.EventID)
	if len(existing) == 0 && e.HasLegacyStream() {
		return repository.ErrLegacyStream
	}
	st.Position = 0
	if n := len(existing); n > 0 {
		st.Position = existing[n-1].Position + 1
	}
	st.IsDefault = len(existing) == 0
	if st.Status == "" {
		st.Status = model.StreamIdle
	}
	st.CreatedAt = s.now()
	s.streams[st.ID] = *st
	e.IsMultiStream = true
	s.events[e.ID] = e
	return nil
}

func (s *Store) SetDefault(_ context.Context, streamID string) (*model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.streams[streamID]
	if !ok {
		return nil, repository.ErrStreamNotFound
	}
	for id, st := range s.streams {
		if st.EventID == target.EventID {
			st.IsDefault = id == streamID
			s.streams[id] = st
		}
	}
	out := s.streams[streamID]
	return &out, nil
}

func (s *Store) RemoveStream(_ context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.streams[streamID]
	if !ok {
		return repository.ErrStreamNotFound
	}
	delete(s.streams, streamID)
	if target.IsDefault {
		if rest := s.eventStreams(target.EventID); len(rest) > 0 {
			first := rest[0]
			first.IsDefault = true
			s.streams[first.ID] = first
		}
	}
	return nil
}

func (s *Store) ListStreams(_ context.Context, eventID string) ([]model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventStreams(eventID), nil
}

func (s *Store) GetStream(_ context.Context, streamID string) (*model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamID]
	if !ok {
		return nil, repository.ErrStreamNotFound
	}
	return &st, nil
}

func (s *Store) ConvertSingleToMulti(_ context.Context, eventID string, st *model.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return repository.ErrEventNotFound
	}
	if len(s.eventStreams(eventID)) > 0 {
		return repository.ErrAlreadyMulti
	}
	if !e.HasLegacyStream() {
		return repository.ErrNoLegacyStream
	}
	st.EventID = eventID
	st.Position = 0
	st.IsDefault = true
	if st.Status == "" {
		st.Status = model.StreamIdle
	}
	st.PlaybackID = *e.MuxPlaybackID
	if e.MuxStreamID != nil {
		st.MuxStreamID = *e.MuxStreamID
	}
	if e.MuxStreamKey != nil {
		st.MuxStreamKey = *e.MuxStreamKey
	}
	st.CreatedAt = s.now()
	s.streams[st.ID] = *st
	e.IsMultiStream = true
	s.events[eventID] = e
	return nil
}

func (s *Store) ListPollable(_ context.Context) ([]model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Stream
	for _, st := range s.streams {
		if st.Status != model.StreamDisabled && st.MuxStreamID != "" {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, streamID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamID]
	if !ok || st.Status == model.StreamDisabled {
		return nil
	}
	st.Status = status
	s.streams[streamID] = st
	return nil
}

func (s *Store) SetEnabled(_ context.Context, streamID string, enabled bool) (*model.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamID]
	if !ok {
		return nil, repository.ErrStreamNotFound
	}
	st.Status = model.StreamDisabled
	if enabled {
		st.Status = model.StreamIdle
	}
	s.streams[streamID] = st
	return &st, nil
}

// --- purchases ---

func (s *Store) FindCompleted(_ context.Context, eventID, email string) (*model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	var found *model.Purchase
	for i := range s.purchases {
		p := s.purchases[i]
		if p.EventID == eventID && p.Email == email && p.Authorizes() {
			if found == nil || p.CreatedAt.After(found.CreatedAt) {
				found = &p
			}
		}
	}
	if found == nil {
		return nil, repository.ErrPurchaseNotFound
	}
	return found, nil
}

func (s *Store) FindByCheckoutSession(_ context.Context, eventID, checkoutSessionID string) (*model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purchases {
		if p.EventID == eventID && checkoutSessionID != "" && p.CheckoutSessionID == checkoutSessionID && p.Authorizes() {
			return &p, nil
		}
	}
	return nil, repository.ErrPurchaseNotFound
}
