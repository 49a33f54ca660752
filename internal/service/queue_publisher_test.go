package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/model"
	q "github.com/iliyamo/ppv-access/internal/queue"
)

// silentBroker accepts TCP connections and never answers the AMQP
// handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestAuthorizeNotHeldUpBySilentBroker(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pub := NewAMQPPublisher(silentBroker(t), 16, 500*time.Millisecond, zap.NewNop())
	defer pub.Close()
	access := NewOrchestrator(f.store, f.store, f.bypass, f.sessions, f.streams, 50, pub, zap.NewNop())
	f.store.PutEvent(geoEvent("ev1"))
	f.store.PutPurchase(model.Purchase{ID: "p1", EventID: "ev1", Email: "alice@example.com", Status: model.PurchaseCompleted})

	tests := []struct {
		name    string
		lat     float64
		granted bool
	}{
		{"denied near the venue", nearViewerLat, false},
		{"granted far from the venue", farViewerLat, true},
		{"denied again", nearViewerLat, false},
	}
	for _, tt := range tests {
		start := time.Now()
		d, err := access.Authorize(context.Background(), AccessRequest{
			EventID:  "ev1",
			Email:    "alice@example.com",
			Location: &geo.Point{Lat: tt.lat, Lng: venueLng},
		})
		if err != nil {
			t.Fatalf("%s: Authorize() error = %v", tt.name, err)
		}
		if d.Granted != tt.granted {
			t.Fatalf("%s: granted = %v, want %v", tt.name, d.Granted, tt.granted)
		}
		if took := time.Since(start); took > 200*time.Millisecond {
			t.Fatalf("%s: Authorize() took %s with an unresponsive broker", tt.name, took)
		}
	}
}

func TestAMQPPublisherDropsWhenFull(t *testing.T) {
	t.Parallel()
	pub := NewAMQPPublisher(silentBroker(t), 1, 500*time.Millisecond, zap.NewNop())

	var busy int
	start := time.Now()
	for i := 0; i < 5; i++ {
		err := pub.Publish(context.Background(), q.AccessEvent{Type: q.TypeAccessDenied})
		if errors.Is(err, ErrPublisherBusy) {
			busy++
		} else if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Fatalf("Publish() blocked for %s", took)
	}
	if busy == 0 {
		t.Fatal("no event dropped with a one-slot buffer and a stalled sender")
	}

	pub.Close()
	if err := pub.Publish(context.Background(), q.AccessEvent{Type: q.TypeAccessDenied}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("Publish() after Close error = %v, want ErrPublisherClosed", err)
	}
}
