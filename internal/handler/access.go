package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/geo"
	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/service"
)

// AccessHandler serves the viewer endpoints: geo check, verification,
// heartbeat and session validation.
type AccessHandler struct {
	Access   *service.Orchestrator
	Geocoder geo.ReverseGeocoder // optional
	Log      *zap.Logger
}

// NewAccessHandler constructs an AccessHandler and panics if the
// orchestrator is nil.  geocoder may be nil.
func NewAccessHandler(access *service.Orchestrator, geocoder geo.ReverseGeocoder, log *zap.Logger) *AccessHandler {
	if access == nil {
		panic("nil orchestrator passed to NewAccessHandler")
	}
	return &AccessHandler{Access: access, Geocoder: geocoder, Log: log.Named("access-handler")}
}

// StreamView is the viewer-facing shape of a stream.
type StreamView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlaybackID string `json:"playback_id"`
	IsDefault  bool   `json:"is_default"`
	Status     string `json:"status"`
}

func streamViews(streams []model.Stream) []StreamView {
	out := make([]StreamView, 0, len(streams))
	for _, s := range streams {
		out = append(out, StreamView{ID: s.ID, Name: s.Name, PlaybackID: s.PlaybackID, IsDefault: s.IsDefault, Status: s.Status})
	}
	return out
}

// viewerLocation returns the viewer point when both coordinates are sent.
func viewerLocation(lat, lng *float64) *geo.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &geo.Point{Lat: *lat, Lng: *lng}
}

type geoCheckRequest struct {
	EventID     string   `json:"event_id"`
	VenueLat    *float64 `json:"venue_lat"`
	VenueLng    *float64 `json:"venue_lng"`
	RadiusKm    *float64 `json:"radius_km"`
	UserLat     *float64 `json:"user_lat"`
	UserLng     *float64 `json:"user_lng"`
	BypassToken string   `json:"bypass_token"`
}

type geoCheckResponse struct {
	Blocked      bool         `json:"blocked"`
	DistanceKm   *float64     `json:"distance_km,omitempty"`
	Bypass       bool         `json:"bypass,omitempty"`
	UserLocation *geo.Place   `json:"user_location,omitempty"`
	Reason       model.Reason `json:"reason,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// GeoCheck handles POST /geo-check.  It applies the bypass and geo rules
// only; purchases and sessions are not touched.
func (h *AccessHandler) GeoCheck(c echo.Context) error {
	var body geoCheckRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.EventID = strings.TrimSpace(body.EventID)
	if body.EventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}
	ctx := c.Request().Context()
	loc := viewerLocation(body.UserLat, body.UserLng)

	g, err := h.Access.CheckGeo(ctx, service.AccessRequest{
		EventID:     body.EventID,
		BypassToken: body.BypassToken,
		Location:    loc,
		VenueLat:    body.VenueLat,
		VenueLng:    body.VenueLng,
		RadiusKm:    body.RadiusKm,
	})
	if err != nil {
		return writeError(c, h.Log, "geo check", err)
	}
	res := geoCheckResponse{Blocked: g.Blocked, DistanceKm: g.DistanceKm, Bypass: g.Bypass, Reason: g.Reason}
	if g.Reason != "" {
		res.Message = g.Reason.Message()
	}
	if loc != nil && loc.Valid() && h.Geocoder != nil {
		res.UserLocation = h.reverse(ctx, *loc)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AccessHandler) reverse(ctx context.Context, p geo.Point) *geo.Place {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	place, err := h.Geocoder.Reverse(ctx, p)
	if err != nil {
		h.Log.Debug("reverse geocode failed", zap.Error(err))
		return nil
	}
	return place
}

type verifyRequest struct {
	EventID         string   `json:"event_id"`
	Email           string   `json:"email"`
	StripeSessionID string   `json:"stripe_session_id"`
	BypassToken     string   `json:"bypass_token"`
	UserLat         *float64 `json:"user_lat"`
	UserLng         *float64 `json:"user_lng"`
	VenueLat        *float64 `json:"venue_lat"`
	VenueLng        *float64 `json:"venue_lng"`
	RadiusKm        *float64 `json:"radius_km"`
}

// Verify handles POST /session/verify.  A grant returns 200 with the
// session token and streams; a denial returns 403 with the reason.
func (h *AccessHandler) Verify(c echo.Context) error {
	var body verifyRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.EventID = strings.TrimSpace(body.EventID)
	if body.EventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}

	d, err := h.Access.Authorize(c.Request().Context(), service.AccessRequest{
		EventID:           body.EventID,
		Email:             body.Email,
		CheckoutSessionID: strings.TrimSpace(body.StripeSessionID),
		BypassToken:       body.BypassToken,
		Location:          viewerLocation(body.UserLat, body.UserLng),
		VenueLat:          body.VenueLat,
		VenueLng:          body.VenueLng,
		RadiusKm:          body.RadiusKm,
	})
	if err != nil {
		return writeError(c, h.Log, "verify", err)
	}
	if !d.Granted {
		res := echo.Map{
			"granted":   false,
			"reason":    d.Reason,
			"message":   d.Reason.Message(),
			"retryable": d.Reason.Retryable(),
		}
		if d.DistanceKm != nil {
			res["distance_km"] = *d.DistanceKm
		}
		return c.JSON(http.StatusForbidden, res)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"granted":                true,
		"session_token":          d.SessionToken,
		"session_id":             d.Session.ID,
		"bypass":                 d.Bypass,
		"default_stream_id":      d.DefaultStreamID,
		"streams":                streamViews(d.Streams),
		"heartbeat_interval_sec": int(h.Access.Sessions().Config().HeartbeatInterval / time.Second),
	})
}

type sessionTokenRequest struct {
	SessionToken string `json:"session_token"`
}

func bindSessionToken(c echo.Context) (string, error) {
	var body sessionTokenRequest
	if err := c.Bind(&body); err != nil {
		return "", c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	tok := strings.TrimSpace(body.SessionToken)
	if tok == "" {
		return "", c.JSON(http.StatusBadRequest, echo.Map{"error": "session_token is required"})
	}
	return tok, nil
}

// Heartbeat handles POST /session/heartbeat.
func (h *AccessHandler) Heartbeat(c echo.Context) error {
	tok, err := bindSessionToken(c)
	if tok == "" {
		return err
	}
	hb, err := h.Access.Sessions().Heartbeat(c.Request().Context(), tok)
	if err != nil {
		return writeError(c, h.Log, "heartbeat", err)
	}
	res := echo.Map{"alive": hb.Alive}
	if !hb.Alive {
		res["reason"] = hb.Reason
		res["message"] = hb.Reason.Message()
	}
	return c.JSON(http.StatusOK, res)
}

// ValidateSession handles POST /session/validate for the playback edge.
// It does not count as a heartbeat.
func (h *AccessHandler) ValidateSession(c echo.Context) error {
	tok, err := bindSessionToken(c)
	if tok == "" {
		return err
	}
	ok, err := h.Access.Sessions().IsSessionValid(c.Request().Context(), tok)
	if err != nil {
		return writeError(c, h.Log, "validate session", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": ok})
}
