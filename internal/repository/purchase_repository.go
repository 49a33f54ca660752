package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/ppv-access/internal/model"
)

const (
	purchaseByEmailSQL = `SELECT id, event_id, email, status, COALESCE(stripe_session_id, ''), created_at
FROM purchases WHERE event_id = ? AND email = ? AND status IN ('completed', 'paid')
ORDER BY created_at DESC LIMIT 1`
	purchaseByCheckoutSQL = `SELECT id, event_id, email, status, COALESCE(stripe_session_id, ''), created_at
FROM purchases WHERE event_id = ? AND stripe_session_id = ? AND status IN ('completed', 'paid')
LIMIT 1`
)

// PurchaseRepo is a read-only view of the payment side's purchases table.
// Rows are written by the payment webhook; access control only checks
// whether a completed one exists.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a PurchaseRepo bound to db.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

func (r *PurchaseRepo) findOne(ctx context.Context, q string, args ...any) (*model.Purchase, error) {
	var p model.Purchase
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&p.ID, &p.EventID, &p.Email, &p.Status, &p.CheckoutSessionID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindCompleted returns the most recent completed purchase of eventID by
// email.  Emails are compared lower-cased and trimmed.
func (r *PurchaseRepo) FindCompleted(ctx context.Context, eventID, email string) (*model.Purchase, error) {
	return r.findOne(ctx, purchaseByEmailSQL, eventID, NormalizeEmail(email))
}

// FindByCheckoutSession returns the completed purchase created by the given
// payment checkout session for eventID.
func (r *PurchaseRepo) FindByCheckoutSession(ctx context.Context, eventID, checkoutSessionID string) (*model.Purchase, error) {
	return r.findOne(ctx, purchaseByCheckoutSQL, eventID, checkoutSessionID)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
