package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPurchaseRepoFindCompleted(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewPurchaseRepo(db)
	cols := []string{"id", "event_id", "email", "status", "stripe_session_id", "created_at"}
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(purchaseByEmailSQL).WithArgs("ev1", "alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p1", "ev1", "alice@example.com", "completed", "cs_1", at))
	mock.ExpectQuery(purchaseByEmailSQL).WithArgs("ev1", "bob@example.com").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(purchaseByCheckoutSQL).WithArgs("ev1", "cs_1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("p1", "ev1", "alice@example.com", "paid", "cs_1", at))

	p, err := repo.FindCompleted(context.Background(), "ev1", " Alice@Example.com ")
	if err != nil {
		t.Fatalf("FindCompleted() error = %v", err)
	}
	if p.ID != "p1" || !p.Authorizes() || p.CheckoutSessionID != "cs_1" {
		t.Fatalf("FindCompleted() = %+v", p)
	}
	if _, err := repo.FindCompleted(context.Background(), "ev1", "bob@example.com"); !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("FindCompleted(bob) error = %v", err)
	}
	p, err = repo.FindByCheckoutSession(context.Background(), "ev1", "cs_1")
	if err != nil || p.Status != "paid" {
		t.Fatalf("FindByCheckoutSession() = %+v, %v", p, err)
	}
}
