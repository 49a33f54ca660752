// Package service implements the viewer access-control flow: bypass tokens,
// the stream registry, single-session enforcement and the orchestrator that
// ties them to geo-blocking and the purchase ledger.  Services depend on the
// store interfaces below; MySQL, Redis and in-memory implementations live in
// internal/repository.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
)

// EventStore reads events and applies the access-related event mutations.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	SetBypassToken(ctx context.Context, id string, token *string, issuedAt *time.Time) error
	UpdateGeo(ctx context.Context, id string, g model.GeoSettings) error
}

// StreamStore persists the feeds of multi-stream events.  Implementations
// keep exactly one default stream per event with streams.
type StreamStore interface {
	AddStream(ctx context.Context, s *model.Stream) error
	SetDefault(ctx context.Context, streamID string) (*model.Stream, error)
	RemoveStream(ctx context.Context, streamID string) error
	ListStreams(ctx context.Context, eventID string) ([]model.Stream, error)
	GetStream(ctx context.Context, streamID string) (*model.Stream, error)
	ConvertSingleToMulti(ctx context.Context, eventID string, s *model.Stream) error
	ListPollable(ctx context.Context) ([]model.Stream, error)
	UpdateStatus(ctx context.Context, streamID, status string) error
	SetEnabled(ctx context.Context, streamID string, enabled bool) (*model.Stream, error)
}

// PurchaseLedger is the lookup contract of the payment side.  Both methods
// return repository.ErrPurchaseNotFound when no authorizing purchase exists.
type PurchaseLedger interface {
	FindCompleted(ctx context.Context, eventID, email string) (*model.Purchase, error)
	FindByCheckoutSession(ctx context.Context, eventID, checkoutSessionID string) (*model.Purchase, error)
}

// SessionStore holds viewing sessions keyed by token hash.  CreateSession
// must supersede the purchase's previous live session atomically.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session, retention time.Duration) (superseded string, err error)
	GetSession(ctx context.Context, tokenHash string) (*model.Session, error)
	TouchSession(ctx context.Context, tokenHash string, now time.Time, liveness, retention time.Duration) (model.SessionState, error)
}

// VideoPlatform is the external live video provider.
type VideoPlatform interface {
	CreateLiveStream(ctx context.Context) (LiveStream, error)
	StreamStatus(ctx context.Context, platformStreamID string) (string, error)
}

// LiveStream holds the identifiers the video platform assigns to a new feed.
type LiveStream struct {
	StreamID   string
	StreamKey  string
	PlaybackID string
}
