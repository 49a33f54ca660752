// Package viewer is the client side of the access flow: it verifies access
// for an event and keeps the resulting session alive with heartbeats until
// the server ends it.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/model"
)

// Client talks to the access service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New returns a client for the service at baseURL.  timeout bounds each
// request.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("viewer"),
	}
}

// VerifyRequest identifies the viewer.  Location is nil when the device
// could not produce one.
type VerifyRequest struct {
	EventID         string
	Email           string
	StripeSessionID string
	BypassToken     string
	Location        *geo.Point
}

// Stream is a feed the viewer may switch to.
type Stream struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlaybackID string `json:"playback_id"`
	IsDefault  bool   `json:"is_default"`
	Status     string `json:"status"`
}

// Grant is a successful verification.
type Grant struct {
	SessionToken      string   `json:"session_token"`
	Bypass            bool     `json:"bypass"`
	DefaultStreamID   string   `json:"default_stream_id"`
	Streams           []Stream `json:"streams"`
	HeartbeatInterval int      `json:"heartbeat_interval_sec"`
}

// Interval returns the heartbeat period the server asked for.
func (g *Grant) Interval() time.Duration {
	if g.HeartbeatInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.HeartbeatInterval) * time.Second
}

// DeniedError is returned by Verify when the server refuses access.
type DeniedError struct {
	Reason     model.Reason `json:"reason"`
	Message    string       `json:"message"`
	DistanceKm *float64     `json:"distance_km"`
}

func (e *DeniedError) Error() string { return "access denied: " + string(e.Reason) }

// StatusError is a non-2xx response the client does not interpret.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body) }

func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func statusError(res *http.Response) error {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(io.LimitReader(res.Body, 4096))
	return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(buf.String())}
}

// Verify asks for a viewing session.  A refusal is a *DeniedError.
func (c *Client) Verify(ctx context.Context, r VerifyRequest) (*Grant, error) {
	body := map[string]any{"event_id": r.EventID}
	if r.Email != "" {
		body["email"] = r.Email
	}
	if r.StripeSessionID != "" {
		body["stripe_session_id"] = r.StripeSessionID
	}
	if r.BypassToken != "" {
		body["bypass_token"] = r.BypassToken
	}
	if r.Location != nil {
		body["user_lat"] = r.Location.Lat
		body["user_lng"] = r.Location.Lng
	}

	res, err := c.post(ctx, "/session/verify", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var g Grant
		if err := json.NewDecoder(res.Body).Decode(&g); err != nil {
			return nil, fmt.Errorf("decode grant: %w", err)
		}
		return &g, nil
	case http.StatusForbidden:
		var d DeniedError
		if err := json.NewDecoder(res.Body).Decode(&d); err != nil {
			return nil, fmt.Errorf("decode denial: %w", err)
		}
		return nil, &d
	}
	return nil, statusError(res)
}

// HeartbeatResult mirrors the server's heartbeat answer.
type HeartbeatResult struct {
	Alive   bool         `json:"alive"`
	Reason  model.Reason `json:"reason"`
	Message string       `json:"message"`
}

// Heartbeat reports the session as still watching.
func (c *Client) Heartbeat(ctx context.Context, token string) (HeartbeatResult, error) {
	res, err := c.post(ctx, "/session/heartbeat", map[string]string{"session_token": token})
	if err != nil {
		return HeartbeatResult{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return HeartbeatResult{}, statusError(res)
	}
	var hb HeartbeatResult
	if err := json.NewDecoder(res.Body).Decode(&hb); err != nil {
		return HeartbeatResult{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return hb, nil
}

// ErrStopped is returned by Watch when ctx ends before the server does.
var ErrStopped = errors.New("watch stopped")

// Watch heartbeats every interval until the server says the session is no
// longer alive and returns that answer.  Failed requests are logged and
// retried on the next tick, so a flaky network never ends playback by
// itself; the server's liveness window decides that.
func (c *Client) Watch(ctx context.Context, token string, interval time.Duration) (HeartbeatResult, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return HeartbeatResult{}, errors.Join(ErrStopped, ctx.Err())
		case <-t.C:
		}
		hb, err := c.Heartbeat(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return HeartbeatResult{}, errors.Join(ErrStopped, ctx.Err())
			}
			failures++
			c.log.Warn("heartbeat failed", zap.Int("consecutive", failures), zap.Error(err))
			continue
		}
		failures = 0
		if !hb.Alive {
			c.log.Info("session ended", zap.String("reason", string(hb.Reason)))
			return hb, nil
		}
	}
}
