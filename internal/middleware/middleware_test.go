package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/config"
	"github.com/iliyamo/ppv-access/internal/utils"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 3, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, newRedis(t), zap.NewNop()))
	e.POST("/session/heartbeat", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.POST("/geo-check", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		if rec := serve(e, http.MethodPost, "/session/heartbeat", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := serve(e, http.MethodPost, "/session/heartbeat", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	// buckets are per route
	if rec := serve(e, http.MethodPost, "/geo-check", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("other route status = %d", rec.Code)
	}
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, zap.NewNop()))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	for i := 0; i < 5; i++ {
		if rec := serve(e, http.MethodGet, "/", ""); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}

func TestRedisCache(t *testing.T) {
	t.Parallel()
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 16,
	}
	var calls int32
	e := echo.New()
	e.GET("/v1/events/:id/streams", func(c echo.Context) error {
		atomic.AddInt32(&calls, 1)
		return c.JSON(http.StatusOK, echo.Map{"event_id": c.Param("id")})
	}, NewRedisCache(cfg, newRedis(t), zap.NewNop()))

	first := serve(e, http.MethodGet, "/v1/events/ev1/streams", "")
	second := serve(e, http.MethodGet, "/v1/events/ev1/streams", "")
	other := serve(e, http.MethodGet, "/v1/events/ev2/streams", "")

	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache = %q then %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached body %q differs from %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(echo.HeaderContentType) == "" {
		t.Fatal("cached response lost Content-Type")
	}
	if other.Header().Get("X-Cache") != "MISS" {
		t.Fatal("different event served from cache")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("handler calls = %d, want 2", got)
	}
}

func TestJWTAuthAndRole(t *testing.T) {
	t.Parallel()
	const secret = "test-secret"
	admin, err := utils.NewAccessToken(secret, "ops@example.com", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	viewer, _ := utils.NewAccessToken(secret, "someone", "VIEWER", time.Hour)
	forged, _ := utils.NewAccessToken("other-secret", "ops@example.com", RoleAdmin, time.Hour)
	expired, _ := utils.NewAccessToken(secret, "ops@example.com", RoleAdmin, -time.Minute)

	e := echo.New()
	g := e.Group("/v1/admin", JWTAuth(secret), RequireRole(RoleAdmin))
	g.GET("/whoami", func(c echo.Context) error { return c.String(http.StatusOK, OperatorID(c)) })

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"admin", "Bearer " + admin.Token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"forged", "Bearer " + forged.Token, http.StatusUnauthorized},
		{"expired", "Bearer " + expired.Token, http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer.Token, http.StatusForbidden},
	}
	for _, tt := range tests {
		rec := serve(e, http.MethodGet, "/v1/admin/whoami", tt.auth)
		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if tt.want == http.StatusOK && rec.Body.String() != "ops@example.com" {
			t.Fatalf("OperatorID = %q", rec.Body.String())
		}
	}
}

func TestCacheInvalidateEvent(t *testing.T) {
	t.Parallel()
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 16,
	}
	rdb := newRedis(t)
	e := echo.New()
	e.GET("/v1/events/:id/streams", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"event_id": c.Param("id")})
	}, NewRedisCache(cfg, rdb, zap.NewNop()))

	for _, path := range []string{"/v1/events/ev1/streams", "/v1/events/ev1/streams?page=2", "/v1/events/ev2/streams"} {
		serve(e, http.MethodGet, path, "")
	}

	inv := NewCacheInvalidator(cfg, rdb)
	if err := inv.InvalidateEvent(context.Background(), "ev1"); err != nil {
		t.Fatalf("InvalidateEvent() error = %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/v1/events/ev1/streams", "MISS"},
		{"/v1/events/ev1/streams?page=2", "MISS"},
		{"/v1/events/ev2/streams", "HIT"},
	}
	for _, tt := range tests {
		if got := serve(e, http.MethodGet, tt.path, "").Header().Get("X-Cache"); got != tt.want {
			t.Fatalf("%s: X-Cache = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCacheInvalidatorDisabled(t *testing.T) {
	t.Parallel()
	inv := NewCacheInvalidator(config.CacheConfig{Enabled: true}, nil)
	if inv != nil {
		t.Fatal("invalidator without redis should be nil")
	}
	if err := inv.InvalidateEvent(context.Background(), "ev1"); err != nil {
		t.Fatalf("nil InvalidateEvent() error = %v", err)
	}
}
