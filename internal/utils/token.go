package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// SessionTokenBytes and BypassTokenBytes are the amounts of entropy in the
// opaque tokens handed out to viewers and crew.
const (
	SessionTokenBytes = 32
	BypassTokenBytes  = 32
)

// NewSessionToken returns a fresh hex-encoded viewing session token.
func NewSessionToken() (string, error) { return randomHex(SessionTokenBytes) }

// NewBypassToken returns a fresh hex-encoded crew bypass token.
func NewBypassToken() (string, error) { return randomHex(BypassTokenBytes) }

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// TokenHasher digests opaque tokens with keyed BLAKE2b-256.  Only digests
// are persisted, so a leaked session store cannot be replayed without the
// server key.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher builds a hasher for the given server key.  BLAKE2b accepts
// keys of at most 64 bytes; longer keys are rejected.
func NewTokenHasher(key string) (*TokenHasher, error) {
	if len(key) > blake2b.Size {
		return nil, errors.New("token hash key longer than 64 bytes")
	}
	return &TokenHasher{key: []byte(key)}, nil
}

// Hash returns the hex digest of raw.
func (h *TokenHasher) Hash(raw string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is validated in NewTokenHasher
		panic(err)
	}
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two tokens in constant time by comparing their
// fixed-length digests, so neither content nor length of a partial match
// leaks through timing.
func (h *TokenHasher) Equal(presented, stored string) bool {
	a := h.Hash(presented)
	b := h.Hash(stored)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
