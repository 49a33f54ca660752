package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/repository"
)

func TestFindCompletedPicksNewestAuthorizing(t *testing.T) {
	t.Parallel()
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.PutPurchase(model.Purchase{ID: "old", EventID: "ev1", Email: "A@x.io", Status: model.PurchaseCompleted, CreatedAt: t0})
	s.PutPurchase(model.Purchase{ID: "new", EventID: "ev1", Email: "a@x.io", Status: model.PurchasePaid, CreatedAt: t0.Add(time.Hour)})
	s.PutPurchase(model.Purchase{ID: "refund", EventID: "ev1", Email: "a@x.io", Status: model.PurchaseRefunded, CreatedAt: t0.Add(2 * time.Hour)})

	p, err := s.FindCompleted(context.Background(), "ev1", "a@X.io")
	if err != nil || p.ID != "new" {
		t.Fatalf("FindCompleted() = %+v, %v", p, err)
	}
	if _, err := s.FindCompleted(context.Background(), "ev2", "a@x.io"); !errors.Is(err, repository.ErrPurchaseNotFound) {
		t.Fatalf("FindCompleted(other event) error = %v", err)
	}
}

func TestSessionRetention(t *testing.T) {
	t.Parallel()
	s := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	sess := &model.Session{ID: "s1", TokenHash: "h1", PurchaseID: "p1", EventID: "ev1", CreatedAt: now}
	if _, err := s.CreateSession(ctx, sess, time.Hour); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if got, err := s.GetSession(ctx, "h1"); err != nil || got.State != model.SessionCreated {
		t.Fatalf("GetSession() = %+v, %v", got, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.GetSession(ctx, "h1"); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("GetSession(after retention) error = %v", err)
	}
	// a new session for the purchase does not report the pruned one
	prev, err := s.CreateSession(ctx, &model.Session{ID: "s2", TokenHash: "h2", PurchaseID: "p1", EventID: "ev1", CreatedAt: now}, time.Hour)
	if err != nil || prev != "" {
		t.Fatalf("CreateSession() = %q, %v", prev, err)
	}
}

func TestRemoveOnlyStream(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	s.PutEvent(model.Event{ID: "ev1"})
	st := &model.Stream{ID: "s1", EventID: "ev1", Name: "A"}
	if err := s.AddStream(ctx, st); err != nil {
		t.Fatalf("AddStream() error = %v", err)
	}
	if err := s.RemoveStream(ctx, "s1"); err != nil {
		t.Fatalf("RemoveStream() error = %v", err)
	}
	if list, _ := s.ListStreams(ctx, "ev1"); len(list) != 0 {
		t.Fatalf("ListStreams() = %+v", list)
	}
}
