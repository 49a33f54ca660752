package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
)

func TestStatusPollerPollOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutEvent(model.Event{ID: "ev1"})
	plat := &fakePlatform{statuses: map[string]string{}}
	reg := NewStreamRegistry(f.store, f.store, plat, zap.NewNop())

	a, _ := reg.AddStream(ctx, "ev1", "A")
	b, _ := reg.AddStream(ctx, "ev1", "B")
	c, _ := reg.AddStream(ctx, "ev1", "C")
	if _, err := reg.SetEnabled(ctx, c.ID, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	plat.statuses[a.MuxStreamID] = model.StreamLive
	plat.statuses[c.MuxStreamID] = model.StreamLive

	p := NewStatusPoller(f.store, plat, time.Minute, time.Second, 2, zap.NewNop())
	n, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PollOnce() updated %d, want 1", n)
	}
	want := map[string]string{a.ID: model.StreamLive, b.ID: model.StreamIdle, c.ID: model.StreamDisabled}
	for id, status := range want {
		s, _ := f.store.GetStream(ctx, id)
		if s.Status != status {
			t.Fatalf("stream %s status = %q, want %q", s.Name, s.Status, status)
		}
	}
	if live, _ := reg.EventLive(ctx, "ev1"); !live {
		t.Fatal("EventLive() = false after poll")
	}
}

func TestStatusPollerPlatformError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutEvent(model.Event{ID: "ev1"})
	plat := &fakePlatform{}
	reg := NewStreamRegistry(f.store, f.store, plat, zap.NewNop())
	_, _ = reg.AddStream(ctx, "ev1", "A")

	plat.err = errors.New("platform down")
	p := NewStatusPoller(f.store, plat, time.Minute, time.Second, 4, zap.NewNop())
	if _, err := p.PollOnce(ctx); err == nil {
		t.Fatal("PollOnce() error = nil with failing platform")
	}
}

func TestStatusPollerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := NewStatusPoller(f.store, &fakePlatform{}, 10*time.Millisecond, 0, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
