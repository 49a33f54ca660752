// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit log.
package queue

// AccessEventsQueue is the durable queue access audit events are published to.
const AccessEventsQueue = "access.events"

// Audit event types.
const (
	TypeAccessGranted     = "access.granted"
	TypeAccessDenied      = "access.denied"
	TypeSessionCreated    = "session.created"
	TypeSessionSuperseded = "session.superseded"
	TypeBypassIssued      = "bypass.issued"
	TypeBypassRotated     = "bypass.rotated"
	TypeBypassRevoked     = "bypass.revoked"
)

// AccessEvent is published for every access decision and every change to a
// session or bypass token.  It carries enough context to audit who watched
// what without querying the primary stores.  Token values are never part of
// an event.
type AccessEvent struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	EventID    string   `json:"event_id"`
	Email      string   `json:"email,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	PurchaseID string   `json:"purchase_id,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Bypass     bool     `json:"bypass,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}
