package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
	q "github.com/iliyamo/ppv-access/internal/queue"
	"github.com/iliyamo/ppv-access/internal/utils"
)

// BypassAuthority issues and checks the per-event crew bypass token.  A
// valid token skips geo-blocking and the purchase lookup.  Each event has
// at most one token; replacing it is a single write, so the old token stops
// working the moment the new one is stored.
type BypassAuthority struct {
	events EventStore
	hasher *utils.TokenHasher
	pub    Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewBypassAuthority wires a BypassAuthority.
func NewBypassAuthority(events EventStore, hasher *utils.TokenHasher, pub Publisher, log *zap.Logger) *BypassAuthority {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &BypassAuthority{
		events: events,
		hasher: hasher,
		pub:    pub,
		log:    log.Named("bypass"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates a token for eventID, replacing any existing one.
func (a *BypassAuthority) Issue(ctx context.Context, eventID string) (string, error) {
	return a.store(ctx, eventID, q.TypeBypassIssued)
}

// Rotate replaces the event's token.  The previous token is invalid once
// Rotate returns.  An event without a token simply gets one.
func (a *BypassAuthority) Rotate(ctx context.Context, eventID string) (string, error) {
	e, err := a.events.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	typ := q.TypeBypassRotated
	if e.CrewBypassToken == nil || *e.CrewBypassToken == "" {
		typ = q.TypeBypassIssued
	}
	return a.store(ctx, eventID, typ)
}

// Revoke clears the event's token.
func (a *BypassAuthority) Revoke(ctx context.Context, eventID string) error {
	if err := a.events.SetBypassToken(ctx, eventID, nil, nil); err != nil {
		return err
	}
	a.log.Info("bypass token revoked", zap.String("event_id", eventID))
	emit(ctx, a.pub, a.log, a.now(), q.AccessEvent{Type: q.TypeBypassRevoked, EventID: eventID})
	return nil
}

func (a *BypassAuthority) store(ctx context.Context, eventID, typ string) (string, error) {
	token, err := utils.NewBypassToken()
	if err != nil {
		return "", err
	}
	now := a.now()
	if err := a.events.SetBypassToken(ctx, eventID, &token, &now); err != nil {
		return "", err
	}
	a.log.Info("bypass token stored", zap.String("event_id", eventID), zap.String("type", typ))
	emit(ctx, a.pub, a.log, now, q.AccessEvent{Type: typ, EventID: eventID})
	return token, nil
}

// Validate reports whether presented is the event's current token.  Empty
// or mismatched tokens are simply invalid.
func (a *BypassAuthority) Validate(ctx context.Context, eventID, presented string) (bool, error) {
	if presented == "" {
		return false, nil
	}
	e, err := a.events.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return a.Matches(e, presented), nil
}

// Matches checks presented against an already loaded event.
func (a *BypassAuthority) Matches(e *model.Event, presented string) bool {
	if presented == "" || e.CrewBypassToken == nil || *e.CrewBypassToken == "" {
		return false
	}
	ok := a.hasher.Equal(presented, *e.CrewBypassToken)
	if !ok {
		a.log.Debug("bypass token rejected",
			zap.String("event_id", e.ID),
			zap.String("reason", string(model.ReasonBypassInvalid)))
	}
	return ok
}
