package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ppv-access/internal/model"
)

// Key layout:
//
//	<prefix>sess:<token hash>        hash with the session fields
//	<prefix>purchase:<purchase key>  token hash of the purchase's newest session
const (
	sessionKeyPart  = "sess:"
	purchaseKeyPart = "purchase:"
)

// createSessionScript installs a new session and supersedes the purchase's
// previous one in a single atomic step.  Two concurrent logins for the same
// purchase therefore serialize: the later script run supersedes the earlier
// session, and at no point are two sessions of one purchase both live.
var createSessionScript = redis.NewScript(`
	local prev = redis.call('GET', KEYS[1])
	local superseded = ''
	if prev and prev ~= ARGV[1] then
		local prevKey = ARGV[2] .. prev
		local st = redis.call('HGET', prevKey, 'state')
		if st == 'CREATED' or st == 'ALIVE' then
			redis.call('HSET', prevKey, 'state', 'SUPERSEDED')
			superseded = prev
		end
	end
	redis.call('HSET', KEYS[2],
		'id', ARGV[3], 'purchase_id', ARGV[4], 'event_id', ARGV[5], 'email', ARGV[6],
		'bypass', ARGV[7], 'state', 'CREATED', 'created_ms', ARGV[8], 'last_heartbeat_ms', ARGV[8])
	redis.call('EXPIRE', KEYS[2], ARGV[9])
	redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[9])
	return superseded
`)

// touchSessionScript records a heartbeat.  Terminal sessions are reported
// as-is; a session whose last beat is older than the liveness window is
// moved to STALE instead of being revived.
var touchSessionScript = redis.NewScript(`
	local f = redis.call('HMGET', KEYS[1], 'state', 'last_heartbeat_ms', 'purchase_id')
	local state = f[1]
	if not state then
		return 'NOT_FOUND'
	end
	if state == 'SUPERSEDED' or state == 'STALE' then
		return state
	end
	local last = tonumber(f[2]) or 0
	if tonumber(ARGV[1]) - last > tonumber(ARGV[2]) then
		redis.call('HSET', KEYS[1], 'state', 'STALE')
		return 'STALE'
	end
	redis.call('HSET', KEYS[1], 'state', 'ALIVE', 'last_heartbeat_ms', ARGV[1])
	redis.call('EXPIRE', KEYS[1], ARGV[3])
	if f[3] then
		redis.call('EXPIRE', ARGV[4] .. f[3], ARGV[3])
	end
	return 'ALIVE'
`)

// RedisSessionStore keeps viewing sessions in Redis so every API instance
// sees the same single-session state.
type RedisSessionStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSessionStore returns a store using keys under prefix (for
// example "ppv:").
func NewRedisSessionStore(rdb *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, prefix: prefix}
}

func (s *RedisSessionStore) sessionKey(hash string) string { return s.prefix + sessionKeyPart + hash }
func (s *RedisSessionStore) purchaseKey(id string) string  { return s.prefix + purchaseKeyPart + id }

func retentionSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CreateSession stores sess as the purchase's current session and returns
// the token hash of the session it superseded, or "" if none was live.
func (s *RedisSessionStore) CreateSession(ctx context.Context, sess *model.Session, retention time.Duration) (string, error) {
	bypass := "0"
	if sess.Bypass {
		bypass = "1"
	}
	keys := []string{s.purchaseKey(sess.PurchaseID), s.sessionKey(sess.TokenHash)}
	args := []interface{}{
		sess.TokenHash,
		s.prefix + sessionKeyPart,
		sess.ID,
		sess.PurchaseID,
		sess.EventID,
		sess.Email,
		bypass,
		sess.CreatedAt.UnixMilli(),
		retentionSeconds(retention),
	}
	return createSessionScript.Run(ctx, s.rdb, keys, args...).Text()
}

// GetSession loads a session by token hash.
func (s *RedisSessionStore) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	m, err := s.rdb.HGetAll(ctx, s.sessionKey(tokenHash)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrSessionNotFound
	}
	sess := &model.Session{
		ID:         m["id"],
		TokenHash:  tokenHash,
		PurchaseID: m["purchase_id"],
		EventID:    m["event_id"],
		Email:      m["email"],
		Bypass:     m["bypass"] == "1",
		State:      model.SessionState(m["state"]),
	}
	sess.CreatedAt = msTime(m["created_ms"])
	sess.LastHeartbeatAt = msTime(m["last_heartbeat_ms"])
	return sess, nil
}

// TouchSession records a heartbeat at now and returns the resulting state.
func (s *RedisSessionStore) TouchSession(ctx context.Context, tokenHash string, now time.Time, liveness, retention time.Duration) (model.SessionState, error) {
	res, err := touchSessionScript.Run(ctx, s.rdb,
		[]string{s.sessionKey(tokenHash)},
		now.UnixMilli(), liveness.Milliseconds(), retentionSeconds(retention), s.prefix+purchaseKeyPart,
	).Text()
	if err != nil {
		return "", err
	}
	if res == "NOT_FOUND" {
		return "", ErrSessionNotFound
	}
	switch st := model.SessionState(res); st {
	case model.SessionAlive, model.SessionStale, model.SessionSuperseded:
		return st, nil
	}
	return "", errors.New("unexpected session state from store: " + res)
}

func msTime(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
