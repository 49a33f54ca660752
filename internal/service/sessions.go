package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
	q "github.com/iliyamo/ppv-access/internal/queue"
	"github.com/iliyamo/ppv-access/internal/repository"
	"github.com/iliyamo/ppv-access/internal/utils"
)

// SessionConfig holds the session timing parameters.
type SessionConfig struct {
	HeartbeatInterval time.Duration // client heartbeat period
	Liveness          time.Duration // max heartbeat gap before a session goes stale
	Retention         time.Duration // how long records outlive their last activity
}

// DefaultSessionConfig returns the 30s/90s/24h defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HeartbeatInterval: 30 * time.Second,
		Liveness:          90 * time.Second,
		Retention:         24 * time.Hour,
	}
}

// PurchaseRef identifies what a session is bound to.  PurchaseKey is the
// purchase id, or BypassPurchaseKey for crew sessions.
type PurchaseRef struct {
	PurchaseKey string
	EventID     string
	Email       string
	Bypass      bool
}

// BypassPurchaseKey returns the purchase key of a bypass session.  Crew
// without an email share a single "crew" slot per event.
func BypassPurchaseKey(eventID, email string) string {
	who := repository.NormalizeEmail(email)
	if who == "" {
		who = "crew"
	}
	return "bypass:" + eventID + ":" + who
}

// HeartbeatResult is the answer to a client heartbeat.
type HeartbeatResult struct {
	Alive  bool         `json:"alive"`
	Reason model.Reason `json:"reason,omitempty"`
}

// SessionManager enforces one live viewing session per purchase.  The
// newest login always wins; older sessions learn they were superseded on
// their next heartbeat.
type SessionManager struct {
	store  SessionStore
	hasher *utils.TokenHasher
	cfg    SessionConfig
	pub    Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewSessionManager wires a SessionManager.
func NewSessionManager(store SessionStore, hasher *utils.TokenHasher, cfg SessionConfig, pub Publisher, log *zap.Logger) *SessionManager {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &SessionManager{
		store:  store,
		hasher: hasher,
		cfg:    cfg,
		pub:    pub,
		log:    log.Named("sessions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the manager's clock.
func (m *SessionManager) SetClock(now func() time.Time) { m.now = now }

// Config returns the session timing parameters.
func (m *SessionManager) Config() SessionConfig { return m.cfg }

// CreateOrReclaim mints a session for ref and supersedes any live session
// of the same purchase.  The raw token is returned once and never stored.
func (m *SessionManager) CreateOrReclaim(ctx context.Context, ref PurchaseRef) (string, *model.Session, error) {
	if ref.PurchaseKey == "" || ref.EventID == "" {
		return "", nil, errors.New("session: purchase key and event id are required")
	}
	token, err := utils.NewSessionToken()
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	sess := &model.Session{
		ID:              uuid.NewString(),
		TokenHash:       m.hasher.Hash(token),
		PurchaseID:      ref.PurchaseKey,
		EventID:         ref.EventID,
		Email:           repository.NormalizeEmail(ref.Email),
		Bypass:          ref.Bypass,
		State:           model.SessionCreated,
		CreatedAt:       now,
		LastHeartbeatAt: now,
	}
	superseded, err := m.store.CreateSession(ctx, sess, m.cfg.Retention)
	if err != nil {
		return "", nil, err
	}

	m.log.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("event_id", sess.EventID),
		zap.Bool("bypass", sess.Bypass),
		zap.Bool("superseded_previous", superseded != ""))
	emit(ctx, m.pub, m.log, now, q.AccessEvent{
		Type: q.TypeSessionCreated, EventID: sess.EventID, Email: sess.Email,
		SessionID: sess.ID, PurchaseID: sess.PurchaseID, Bypass: sess.Bypass,
	})
	if superseded != "" {
		emit(ctx, m.pub, m.log, now, q.AccessEvent{
			Type: q.TypeSessionSuperseded, EventID: sess.EventID, Email: sess.Email,
			PurchaseID: sess.PurchaseID, Bypass: sess.Bypass,
		})
	}
	return token, sess, nil
}

// Heartbeat records a beat for token.  A live session becomes ALIVE; a
// session past its liveness window becomes STALE and reports
// SESSION_EXPIRED; a superseded one reports SESSION_SUPERSEDED.  Unknown
// tokens report SESSION_NOT_FOUND.
func (m *SessionManager) Heartbeat(ctx context.Context, token string) (HeartbeatResult, error) {
	if token == "" {
		return HeartbeatResult{Reason: model.ReasonSessionNotFound}, nil
	}
	state, err := m.store.TouchSession(ctx, m.hasher.Hash(token), m.now(), m.cfg.Liveness, m.cfg.Retention)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return HeartbeatResult{Reason: model.ReasonSessionNotFound}, nil
	}
	if err != nil {
		return HeartbeatResult{}, err
	}
	switch state {
	case model.SessionAlive:
		return HeartbeatResult{Alive: true}, nil
	case model.SessionSuperseded:
		return HeartbeatResult{Reason: model.ReasonSessionSuperseded}, nil
	default:
		return HeartbeatResult{Reason: model.ReasonSessionExpired}, nil
	}
}

// IsSessionValid reports whether token belongs to a live session.  It does
// not count as a heartbeat.
func (m *SessionManager) IsSessionValid(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	sess, err := m.store.GetSession(ctx, m.hasher.Hash(token))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Live(m.now(), m.cfg.Liveness), nil
}
