package memstore

import (
	"context"
	"time"

	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/repository"
)

// CreateSession stores sess as the purchase's current session and returns
// the token hash of the live session it superseded, or "".
func (s *Store) CreateSession(_ context.Context, sess *model.Session, retention time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)

	superseded := ""
	if prev, ok := s.byPurchase[sess.PurchaseID]; ok && prev != sess.TokenHash {
		if old, ok := s.sessions[prev]; ok && !old.State.Terminal() {
			old.State = model.SessionSuperseded
			s.sessions[prev] = old
			superseded = prev
		}
	}
	stored := *sess
	stored.State = model.SessionCreated
	stored.LastHeartbeatAt = stored.CreatedAt
	s.sessions[sess.TokenHash] = stored
	s.byPurchase[sess.PurchaseID] = sess.TokenHash
	s.expiresAt[sess.TokenHash] = now.Add(retention)
	return superseded, nil
}

// GetSession loads a session by token hash.
func (s *Store) GetSession(_ context.Context, tokenHash string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok || s.expiredLocked(tokenHash, s.now()) {
		return nil, repository.ErrSessionNotFound
	}
	return &sess, nil
}

// TouchSession records a heartbeat at now and returns the resulting state.
func (s *Store) TouchSession(_ context.Context, tokenHash string, now time.Time, liveness, retention time.Duration) (model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok || s.expiredLocked(tokenHash, s.now()) {
		return "", repository.ErrSessionNotFound
	}
	if sess.State.Terminal() {
		return sess.State, nil
	}
	if sess.Expired(now, liveness) {
		sess.State = model.SessionStale
		s.sessions[tokenHash] = sess
		return sess.State, nil
	}
	sess.State = model.SessionAlive
	sess.LastHeartbeatAt = now
	s.sessions[tokenHash] = sess
	s.expiresAt[tokenHash] = s.now().Add(retention)
	return sess.State, nil
}

func (s *Store) expiredLocked(tokenHash string, now time.Time) bool {
	exp, ok := s.expiresAt[tokenHash]
	return ok && now.After(exp)
}

// pruneLocked drops sessions past their retention.
func (s *Store) pruneLocked(now time.Time) {
	for hash, exp := range s.expiresAt {
		if now.After(exp) {
			sess := s.sessions[hash]
			if s.byPurchase[sess.PurchaseID] == hash {
				delete(s.byPurchase, sess.PurchaseID)
			}
			delete(s.sessions, hash)
			delete(s.expiresAt, hash)
		}
	}
}
