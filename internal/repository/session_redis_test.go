package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ppv-access/internal/model"
)

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionStore(rdb, "test:"), mr
}

func newSession(hash, purchase string, at time.Time) *model.Session {
	return &model.Session{
		ID: "id-" + hash, TokenHash: hash, PurchaseID: purchase, EventID: "ev1",
		Email: "alice@example.com", State: model.SessionCreated, CreatedAt: at, LastHeartbeatAt: at,
	}
}

func TestRedisSessionLifecycle(t *testing.T) {
	t.Parallel()
	s, mr := newRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	prev, err := s.CreateSession(ctx, newSession("h1", "p1", t0), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if prev != "" {
		t.Fatalf("CreateSession() superseded %q on first session", prev)
	}
	got, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.State != model.SessionCreated || got.PurchaseID != "p1" || !got.CreatedAt.Equal(t0) || got.Bypass {
		t.Fatalf("GetSession() = %+v", got)
	}
	if ttl := mr.TTL("test:sess:h1"); ttl != time.Hour {
		t.Fatalf("session TTL = %v, want 1h", ttl)
	}

	st, err := s.TouchSession(ctx, "h1", t0.Add(30*time.Second), 90*time.Second, time.Hour)
	if err != nil || st != model.SessionAlive {
		t.Fatalf("TouchSession() = %q, %v", st, err)
	}
	got, _ = s.GetSession(ctx, "h1")
	if !got.LastHeartbeatAt.Equal(t0.Add(30 * time.Second)) {
		t.Fatalf("LastHeartbeatAt = %v", got.LastHeartbeatAt)
	}

	// gap exactly equal to the window is still alive
	st, _ = s.TouchSession(ctx, "h1", t0.Add(120*time.Second), 90*time.Second, time.Hour)
	if st != model.SessionAlive {
		t.Fatalf("TouchSession(at window) = %q", st)
	}
	st, _ = s.TouchSession(ctx, "h1", t0.Add(211*time.Second), 90*time.Second, time.Hour)
	if st != model.SessionStale {
		t.Fatalf("TouchSession(past window) = %q", st)
	}
	st, _ = s.TouchSession(ctx, "h1", t0.Add(212*time.Second), 90*time.Second, time.Hour)
	if st != model.SessionStale {
		t.Fatalf("TouchSession(after stale) = %q", st)
	}
}

func TestRedisSessionSupersede(t *testing.T) {
	t.Parallel()
	s, _ := newRedisStore(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	if _, err := s.CreateSession(ctx, newSession("h1", "p1", t0), time.Hour); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	prev, err := s.CreateSession(ctx, newSession("h2", "p1", t0), time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if prev != "h1" {
		t.Fatalf("superseded = %q, want h1", prev)
	}
	old, _ := s.GetSession(ctx, "h1")
	if old.State != model.SessionSuperseded {
		t.Fatalf("old state = %q", old.State)
	}
	if st, _ := s.TouchSession(ctx, "h1", t0, time.Minute, time.Hour); st != model.SessionSuperseded {
		t.Fatalf("TouchSession(old) = %q", st)
	}
	if st, _ := s.TouchSession(ctx, "h2", t0, time.Minute, time.Hour); st != model.SessionAlive {
		t.Fatalf("TouchSession(new) = %q", st)
	}

	// a stale predecessor is not reported as superseded
	if _, err := s.CreateSession(ctx, newSession("h3", "p2", t0), time.Hour); err != nil {
		t.Fatal(err)
	}
	_, _ = s.TouchSession(ctx, "h3", t0.Add(time.Hour), time.Minute, time.Hour)
	if prev, _ := s.CreateSession(ctx, newSession("h4", "p2", t0), time.Hour); prev != "" {
		t.Fatalf("superseded stale session %q", prev)
	}
}

func TestRedisSessionNotFound(t *testing.T) {
	t.Parallel()
	s, mr := newRedisStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetSession() error = %v", err)
	}
	if _, err := s.TouchSession(ctx, "nope", time.Now(), time.Minute, time.Hour); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("TouchSession() error = %v", err)
	}

	_, _ = s.CreateSession(ctx, newSession("h1", "p1", time.Now()), time.Minute)
	mr.FastForward(2 * time.Minute)
	if _, err := s.GetSession(ctx, "h1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetSession(after retention) error = %v", err)
	}
}

func TestRedisSessionBypassFlag(t *testing.T) {
	t.Parallel()
	s, _ := newRedisStore(t)
	sess := newSession("h1", "bypass:ev1:crew", time.Now().UTC())
	sess.Bypass = true
	if _, err := s.CreateSession(context.Background(), sess, time.Hour); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	got, _ := s.GetSession(context.Background(), "h1")
	if !got.Bypass {
		t.Fatal("bypass flag lost")
	}
}
