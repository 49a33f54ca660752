package model

import "time"

// Purchase statuses written by the payment webhook.  Only completed
// purchases authorize viewing.
const (
	PurchaseCompleted = "completed"
	PurchasePaid      = "paid"
	PurchasePending   = "pending"
	PurchaseRefunded  = "refunded"
)

// Purchase is a read-only projection of an order for one event.  The
// payment side owns the row; access control only looks it up.
type Purchase struct {
	ID                string    // purchases.id
	EventID           string    // purchases.event_id
	Email             string    // purchases.email (lower-cased)
	Status            string    // purchases.status
	CheckoutSessionID string    // purchases.stripe_session_id
	CreatedAt         time.Time // purchases.created_at
}

// Authorizes reports whether the purchase grants access.
func (p *Purchase) Authorizes() bool {
	return p.Status == PurchaseCompleted || p.Status == PurchasePaid
}
