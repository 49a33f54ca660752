package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/handler"
	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/repository/memstore"
	"github.com/iliyamo/ppv-access/internal/router"
	"github.com/iliyamo/ppv-access/internal/service"
	"github.com/iliyamo/ppv-access/internal/utils"
)

func newServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	hasher, err := utils.NewTokenHasher("viewer-test-key")
	if err != nil {
		t.Fatal(err)
	}
	sessions := service.NewSessionManager(store, hasher, service.DefaultSessionConfig(), nil, log)
	bypass := service.NewBypassAuthority(store, hasher, nil, log)
	streams := service.NewStreamRegistry(store, store, nil, log)
	access := service.NewOrchestrator(store, store, bypass, sessions, streams, 50, nil, log)

	e := echo.New()
	noop := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router.RegisterAccess(e, handler.NewAccessHandler(access, nil, log), noop)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestWatchEndsWhenAnotherDeviceTakesOver(t *testing.T) {
	t.Parallel()
	srv, store := newServer(t)
	playback := "pb-main"
	store.PutEvent(model.Event{ID: "ev1", MuxPlaybackID: &playback})
	store.PutPurchase(model.Purchase{ID: "p1", EventID: "ev1", Email: "alice@example.com", Status: model.PurchaseCompleted})

	laptop := New(srv.URL, time.Second, zap.NewNop())
	phone := New(srv.URL, time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, err := laptop.Verify(ctx, VerifyRequest{EventID: "ev1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("verify laptop: %v", err)
	}
	if g1.DefaultStreamID != model.LegacyStreamID || len(g1.Streams) != 1 || g1.Streams[0].PlaybackID != playback {
		t.Fatalf("grant = %+v", g1)
	}
	if g1.Interval() != 30*time.Second {
		t.Fatalf("interval = %s", g1.Interval())
	}
	hb, err := laptop.Heartbeat(ctx, g1.SessionToken)
	if err != nil || !hb.Alive {
		t.Fatalf("heartbeat = %+v, %v", hb, err)
	}

	if _, err := phone.Verify(ctx, VerifyRequest{EventID: "ev1", Email: "Alice@Example.com"}); err != nil {
		t.Fatalf("verify phone: %v", err)
	}
	end, err := laptop.Watch(ctx, g1.SessionToken, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if end.Alive || end.Reason != model.ReasonSessionSuperseded || end.Message == "" {
		t.Fatalf("watch result = %+v", end)
	}
}

func TestVerifyDenied(t *testing.T) {
	t.Parallel()
	srv, store := newServer(t)
	lat, lng, r := -27.4698, 153.0251, 50.0
	store.PutEvent(model.Event{ID: "ev1", GeoBlockingEnabled: true, GeoLat: &lat, GeoLng: &lng, GeoRadiusKm: &r})

	c := New(srv.URL, time.Second, zap.NewNop())
	tests := []struct {
		name   string
		loc    *geo.Point
		reason model.Reason
	}{
		{"no location", nil, model.ReasonLocationUnavailable},
		{"inside radius", &geo.Point{Lat: -27.3618814073, Lng: 153.0251}, model.ReasonGeoBlocked},
		{"outside radius without purchase", &geo.Point{Lat: -27.0093473378, Lng: 153.0251}, model.ReasonNoPurchase},
	}
	for _, tt := range tests {
		_, err := c.Verify(context.Background(), VerifyRequest{EventID: "ev1", Email: "bob@example.com", Location: tt.loc})
		var denied *DeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("%s: err = %v, want denial", tt.name, err)
		}
		if denied.Reason != tt.reason {
			t.Fatalf("%s: reason = %s, want %s", tt.name, denied.Reason, tt.reason)
		}
	}
}

func TestWatchRetriesFailedHeartbeats(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		alive := n < 4
		res := map[string]any{"alive": alive}
		if !alive {
			res["reason"] = model.ReasonSessionExpired
		}
		_ = json.NewEncoder(w).Encode(res)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	end, err := c.Watch(context.Background(), "tok", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if end.Reason != model.ReasonSessionExpired || calls.Load() != 4 {
		t.Fatalf("result = %+v after %d calls", end, calls.Load())
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alive":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, time.Second, zap.NewNop()).Watch(ctx, "tok", 5*time.Millisecond)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
