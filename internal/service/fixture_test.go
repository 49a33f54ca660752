package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
	q "github.com/iliyamo/ppv-access/internal/queue"
	"github.com/iliyamo/ppv-access/internal/repository/memstore"
	"github.com/iliyamo/ppv-access/internal/utils"
)

const (
	venueLat = -27.4698
	venueLng = 153.0251
	// same longitude as the venue, 51.2 km and 12.0 km north
	farViewerLat  = -27.0093473378
	nearViewerLat = -27.3618814073
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []q.AccessEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev q.AccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *recordingPublisher) count(typ string) int {
	n := 0
	for _, t := range p.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memstore.Store
	pub      *recordingPublisher
	clock    *manualClock
	hasher   *utils.TokenHasher
	sessions *SessionManager
	bypass   *BypassAuthority
	streams  *StreamRegistry
	access   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher, err := utils.NewTokenHasher("test-hash-key")
	if err != nil {
		t.Fatalf("NewTokenHasher() error = %v", err)
	}
	f := &fixture{
		store:  memstore.New(),
		pub:    &recordingPublisher{},
		clock:  &manualClock{now: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)},
		hasher: hasher,
	}
	f.store.SetClock(f.clock.Now)
	log := zap.NewNop()
	f.sessions = NewSessionManager(f.store, hasher, DefaultSessionConfig(), f.pub, log)
	f.sessions.SetClock(f.clock.Now)
	f.bypass = NewBypassAuthority(f.store, hasher, f.pub, log)
	f.streams = NewStreamRegistry(f.store, f.store, nil, log)
	f.access = NewOrchestrator(f.store, f.store, f.bypass, f.sessions, f.streams, 50, f.pub, log)
	return f
}

func ptr[T any](v T) *T { return &v }

// geoEvent is a geo-blocked event at the test venue with a 50 km radius.
func geoEvent(id string) model.Event {
	return model.Event{
		ID:                 id,
		GeoBlockingEnabled: true,
		GeoLat:             ptr(venueLat),
		GeoLng:             ptr(venueLng),
		GeoRadiusKm:        ptr(50.0),
	}
}
