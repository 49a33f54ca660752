package model

import "time"

// SessionState is the lifecycle state of a viewing session.
type SessionState string

const (
	SessionCreated    SessionState = "CREATED"
	SessionAlive      SessionState = "ALIVE"
	SessionStale      SessionState = "STALE"
	SessionSuperseded SessionState = "SUPERSEDED"
)

// Terminal reports whether no transition leaves the state.
func (s SessionState) Terminal() bool {
	return s == SessionStale || s == SessionSuperseded
}

// Session binds a verified purchase to one viewing client.  The capability
// token handed to the client is never stored; TokenHash is its keyed digest
// and doubles as the storage key.
type Session struct {
	ID              string       // audit identifier (UUID)
	TokenHash       string       // keyed digest of the session token
	PurchaseID      string       // purchase key the session is bound to
	EventID         string       // event being watched
	Email           string       // viewer email
	Bypass          bool         // created through a crew bypass token
	State           SessionState // lifecycle state
	CreatedAt       time.Time    // creation time (UTC)
	LastHeartbeatAt time.Time    // last heartbeat, or creation time
}

// Expired reports whether no heartbeat arrived within the liveness window.
// A gap exactly equal to the window is still alive.
func (s *Session) Expired(now time.Time, liveness time.Duration) bool {
	return now.Sub(s.LastHeartbeatAt) > liveness
}

// Live reports whether the session currently counts as the purchase's
// viewing session.
func (s *Session) Live(now time.Time, liveness time.Duration) bool {
	return !s.State.Terminal() && !s.Expired(now, liveness)
}
