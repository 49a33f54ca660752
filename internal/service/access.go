package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/model"
	q "github.com/iliyamo/ppv-access/internal/queue"
	"github.com/iliyamo/ppv-access/internal/repository"
)

// AccessRequest is one viewer's attempt to watch an event.
type AccessRequest struct {
	EventID           string
	Email             string
	CheckoutSessionID string     // payment checkout id, preferred over email when set
	BypassToken       string     // crew bypass token, optional
	Location          *geo.Point // viewer position, nil when unavailable

	// Venue fallback sent by older clients.  Only used when the event has
	// no stored venue coordinate.
	VenueLat, VenueLng, RadiusKm *float64
}

// GeoDecision is the geo part of an access decision.
type GeoDecision struct {
	Blocked    bool
	Bypass     bool
	Skipped    bool // geo-blocking disabled or no venue configured
	DistanceKm *float64
	Reason     model.Reason // LOCATION_UNAVAILABLE or GEO_BLOCKED when Blocked
}

// Decision is the outcome of Authorize.  Denials are values, not errors.
type Decision struct {
	Granted         bool
	Reason          model.Reason
	DistanceKm      *float64
	Bypass          bool
	SessionToken    string
	Session         *model.Session
	Streams         []model.Stream
	DefaultStreamID string
}

// Orchestrator runs the access flow: bypass, then geo-blocking, then the
// purchase lookup, then the session.
type Orchestrator struct {
	events        EventStore
	purchases     PurchaseLedger
	bypass        *BypassAuthority
	sessions      *SessionManager
	streams       *StreamRegistry
	defaultRadius float64
	pub           Publisher
	log           *zap.Logger
}

// NewOrchestrator wires an Orchestrator.  defaultRadius is used for events
// that enable geo-blocking without a radius.
func NewOrchestrator(events EventStore, purchases PurchaseLedger, bypass *BypassAuthority, sessions *SessionManager,
	streams *StreamRegistry, defaultRadius float64, pub Publisher, log *zap.Logger) *Orchestrator {
	if defaultRadius <= 0 {
		defaultRadius = model.DefaultGeoRadiusKm
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Orchestrator{
		events:        events,
		purchases:     purchases,
		bypass:        bypass,
		sessions:      sessions,
		streams:       streams,
		defaultRadius: defaultRadius,
		pub:           pub,
		log:           log.Named("access"),
	}
}

// Sessions exposes the session manager for heartbeat handling.
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// CheckGeo runs the bypass and geo steps only.  It never consults the
// purchase ledger and never creates a session.
func (o *Orchestrator) CheckGeo(ctx context.Context, req AccessRequest) (GeoDecision, error) {
	e, err := o.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return GeoDecision{}, err
	}
	if o.bypass.Matches(e, req.BypassToken) {
		return GeoDecision{Bypass: true}, nil
	}
	return o.evaluateGeo(e, req), nil
}

func (o *Orchestrator) radiusFor(e *model.Event, req AccessRequest) float64 {
	if e.GeoRadiusKm != nil && *e.GeoRadiusKm > 0 {
		return *e.GeoRadiusKm
	}
	if req.RadiusKm != nil && *req.RadiusKm > 0 {
		return *req.RadiusKm
	}
	return o.defaultRadius
}

func (o *Orchestrator) evaluateGeo(e *model.Event, req AccessRequest) GeoDecision {
	if !e.GeoBlockingEnabled {
		return GeoDecision{Skipped: true}
	}
	var venueLat, venueLng float64
	switch {
	case e.HasVenue():
		venueLat, venueLng = *e.GeoLat, *e.GeoLng
	case req.VenueLat != nil && req.VenueLng != nil:
		venueLat, venueLng = *req.VenueLat, *req.VenueLng
	default:
		o.log.Warn("geo-blocking enabled without venue coordinates; skipping", zap.String("event_id", e.ID))
		return GeoDecision{Skipped: true}
	}
	if req.Location == nil {
		return GeoDecision{Blocked: true, Reason: model.ReasonLocationUnavailable}
	}

	res, err := geo.Verify(venueLat, venueLng, o.radiusFor(e, req), req.Location.Lat, req.Location.Lng)
	if errors.Is(err, geo.ErrLocationUnavailable) {
		return GeoDecision{Blocked: true, Reason: model.ReasonLocationUnavailable}
	}
	if err != nil {
		o.log.Warn("invalid venue coordinate; skipping geo check", zap.String("event_id", e.ID), zap.Error(err))
		return GeoDecision{Skipped: true}
	}
	d := res.DistanceKm
	if res.Blocked {
		return GeoDecision{Blocked: true, DistanceKm: &d, Reason: model.ReasonGeoBlocked}
	}
	return GeoDecision{DistanceKm: &d}
}

// Authorize decides whether req may watch its event.  A granted decision
// carries a fresh session token and the event's streams.  Infrastructure
// failures are returned as errors and never as grants.
func (o *Orchestrator) Authorize(ctx context.Context, req AccessRequest) (*Decision, error) {
	e, err := o.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	if o.bypass.Matches(e, req.BypassToken) {
		ref := PurchaseRef{
			PurchaseKey: BypassPurchaseKey(e.ID, req.Email),
			EventID:     e.ID,
			Email:       req.Email,
			Bypass:      true,
		}
		return o.grant(ctx, e, ref, nil)
	}

	g := o.evaluateGeo(e, req)
	if g.Blocked {
		return o.deny(ctx, e.ID, req.Email, g.Reason, g.DistanceKm), nil
	}

	p, err := o.lookupPurchase(ctx, e.ID, req)
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		return o.deny(ctx, e.ID, req.Email, model.ReasonNoPurchase, g.DistanceKm), nil
	}
	if err != nil {
		return nil, err
	}
	ref := PurchaseRef{PurchaseKey: p.ID, EventID: e.ID, Email: p.Email}
	return o.grant(ctx, e, ref, g.DistanceKm)
}

// lookupPurchase prefers the checkout session id and falls back to email.
func (o *Orchestrator) lookupPurchase(ctx context.Context, eventID string, req AccessRequest) (*model.Purchase, error) {
	if req.CheckoutSessionID != "" {
		p, err := o.purchases.FindByCheckoutSession(ctx, eventID, req.CheckoutSessionID)
		if !errors.Is(err, repository.ErrPurchaseNotFound) {
			return p, err
		}
	}
	if repository.NormalizeEmail(req.Email) == "" {
		return nil, repository.ErrPurchaseNotFound
	}
	return o.purchases.FindCompleted(ctx, eventID, req.Email)
}

func (o *Orchestrator) grant(ctx context.Context, e *model.Event, ref PurchaseRef, distance *float64) (*Decision, error) {
	streams, defaultID, err := o.streams.ViewerStreams(ctx, e)
	if err != nil {
		return nil, err
	}
	token, sess, err := o.sessions.CreateOrReclaim(ctx, ref)
	if err != nil {
		return nil, err
	}
	emit(ctx, o.pub, o.log, time.Now(), q.AccessEvent{
		Type: q.TypeAccessGranted, EventID: e.ID, Email: sess.Email, SessionID: sess.ID,
		PurchaseID: sess.PurchaseID, DistanceKm: distance, Bypass: ref.Bypass,
	})
	return &Decision{
		Granted:         true,
		Reason:          model.ReasonGranted,
		DistanceKm:      distance,
		Bypass:          ref.Bypass,
		SessionToken:    token,
		Session:         sess,
		Streams:         streams,
		DefaultStreamID: defaultID,
	}, nil
}

func (o *Orchestrator) deny(ctx context.Context, eventID, email string, reason model.Reason, distance *float64) *Decision {
	o.log.Info("access denied", zap.String("event_id", eventID), zap.String("reason", string(reason)))
	emit(ctx, o.pub, o.log, time.Now(), q.AccessEvent{
		Type: q.TypeAccessDenied, EventID: eventID, Email: repository.NormalizeEmail(email),
		Reason: string(reason), DistanceKm: distance,
	})
	return &Decision{Reason: reason, DistanceKm: distance}
}

// UpdateGeo stores new geo-blocking settings for an event.
func (o *Orchestrator) UpdateGeo(ctx context.Context, eventID string, g model.GeoSettings) (*model.Event, error) {
	if g.Lat != nil || g.Lng != nil {
		if g.Lat == nil || g.Lng == nil || !(geo.Point{Lat: *g.Lat, Lng: *g.Lng}).Valid() {
			return nil, ErrInvalidGeo
		}
	}
	if g.RadiusKm != nil && *g.RadiusKm < 0 {
		return nil, ErrInvalidGeo
	}
	if err := o.events.UpdateGeo(ctx, eventID, g); err != nil {
		return nil, err
	}
	o.log.Info("geo settings updated", zap.String("event_id", eventID), zap.Bool("enabled", g.Enabled))
	return o.events.GetEvent(ctx, eventID)
}

// ErrInvalidGeo is returned for out-of-range venue coordinates or a
// negative radius.
var ErrInvalidGeo = errors.New("invalid geo settings")
