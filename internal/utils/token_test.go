package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewSessionTokenUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewSessionToken()
		if err != nil {
			t.Fatalf("NewSessionToken() error = %v", err)
		}
		if len(tok) != SessionTokenBytes*2 {
			t.Fatalf("len(token) = %d, want %d", len(tok), SessionTokenBytes*2)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestTokenHasher(t *testing.T) {
	t.Parallel()

	h1, err := NewTokenHasher("server-key-one")
	if err != nil {
		t.Fatalf("NewTokenHasher() error = %v", err)
	}
	h2, _ := NewTokenHasher("server-key-two")

	if h1.Hash("abc123") != h1.Hash("abc123") {
		t.Fatal("Hash is not deterministic")
	}
	if h1.Hash("abc123") == h2.Hash("abc123") {
		t.Fatal("different keys produced the same digest")
	}
	if !h1.Equal("abc123", "abc123") {
		t.Fatal("Equal(same) = false")
	}
	for _, other := range []string{"", "abc12", "abc1234", "ABC123", "xyz789"} {
		if h1.Equal(other, "abc123") {
			t.Fatalf("Equal(%q, abc123) = true", other)
		}
	}
	if _, err := NewTokenHasher(strings.Repeat("k", 65)); err == nil {
		t.Fatal("NewTokenHasher accepted a 65 byte key")
	}
}

func TestNewAccessToken(t *testing.T) {
	t.Parallel()

	at, err := NewAccessToken("secret", "ops@example.com", "ADMIN", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	tok, err := jwt.Parse(at.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	if err != nil || !tok.Valid {
		t.Fatalf("parse signed token: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != "ops@example.com" || claims["role"] != "ADMIN" {
		t.Fatalf("claims = %v", claims)
	}
}
