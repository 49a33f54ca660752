package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/middleware"
	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/service"
)

// EventCache drops cached public responses for an event.
type EventCache interface {
	InvalidateEvent(ctx context.Context, eventID string) error
}

// AdminHandler serves operator endpoints for streams, bypass tokens and
// geo settings.  Routes are guarded by JWTAuth and RequireRole(ADMIN).
type AdminHandler struct {
	Streams *service.StreamRegistry
	Bypass  *service.BypassAuthority
	Access  *service.Orchestrator
	Cache   EventCache // optional
	Log     *zap.Logger
}

// NewAdminHandler constructs an AdminHandler and panics if any service is
// nil.  cache may be nil.
func NewAdminHandler(streams *service.StreamRegistry, bypass *service.BypassAuthority, access *service.Orchestrator, cache EventCache, log *zap.Logger) *AdminHandler {
	if streams == nil || bypass == nil || access == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Streams: streams, Bypass: bypass, Access: access, Cache: cache, Log: log.Named("admin-handler")}
}

// streamsChanged evicts the event's public stream list.  The write already
// happened, so a cache failure is only logged.
func (h *AdminHandler) streamsChanged(c echo.Context, eventID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.InvalidateEvent(c.Request().Context(), eventID); err != nil {
		h.Log.Warn("cache invalidation failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// adminStream includes the ingest identifiers hidden from viewers.
type adminStream struct {
	model.Stream
	MuxStreamID  string `json:"mux_stream_id"`
	MuxStreamKey string `json:"mux_stream_key"`
}

func toAdminStream(s *model.Stream) adminStream {
	return adminStream{Stream: *s, MuxStreamID: s.MuxStreamID, MuxStreamKey: s.MuxStreamKey}
}

func (h *AdminHandler) audit(c echo.Context, action string, fields ...zap.Field) {
	h.Log.Info(action, append(fields, zap.String("operator", middleware.OperatorID(c)))...)
}

// ListStreams handles GET /v1/admin/events/:id/streams.
func (h *AdminHandler) ListStreams(c echo.Context) error {
	streams, err := h.Streams.ListStreams(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "list streams", err)
	}
	out := make([]adminStream, 0, len(streams))
	for i := range streams {
		out = append(out, toAdminStream(&streams[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"streams": out})
}

type streamNameRequest struct {
	Name string `json:"name"`
}

// AddStream handles POST /v1/admin/events/:id/streams.
func (h *AdminHandler) AddStream(c echo.Context) error {
	var body streamNameRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	s, err := h.Streams.AddStream(c.Request().Context(), c.Param("id"), body.Name)
	if err != nil {
		return writeError(c, h.Log, "add stream", err)
	}
	h.audit(c, "stream added", zap.String("event_id", s.EventID), zap.String("stream_id", s.ID))
	h.streamsChanged(c, s.EventID)
	return c.JSON(http.StatusCreated, toAdminStream(s))
}

// SetDefaultStream handles PUT /v1/admin/streams/:id/default.
func (h *AdminHandler) SetDefaultStream(c echo.Context) error {
	s, err := h.Streams.SetDefault(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "set default stream", err)
	}
	h.audit(c, "default stream set", zap.String("event_id", s.EventID), zap.String("stream_id", s.ID))
	h.streamsChanged(c, s.EventID)
	return c.JSON(http.StatusOK, toAdminStream(s))
}

// SetStreamEnabled handles PUT /v1/admin/streams/:id/enabled.
func (h *AdminHandler) SetStreamEnabled(c echo.Context) error {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil || body.Enabled == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "enabled is required"})
	}
	s, err := h.Streams.SetEnabled(c.Request().Context(), c.Param("id"), *body.Enabled)
	if err != nil {
		return writeError(c, h.Log, "set stream enabled", err)
	}
	h.audit(c, "stream enabled changed", zap.String("stream_id", s.ID), zap.Bool("enabled", *body.Enabled))
	h.streamsChanged(c, s.EventID)
	return c.JSON(http.StatusOK, toAdminStream(s))
}

// RemoveStream handles DELETE /v1/admin/streams/:id.
func (h *AdminHandler) RemoveStream(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.Streams.GetStream(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "remove stream", err)
	}
	if err := h.Streams.RemoveStream(ctx, s.ID); err != nil {
		return writeError(c, h.Log, "remove stream", err)
	}
	h.audit(c, "stream removed", zap.String("event_id", s.EventID), zap.String("stream_id", s.ID))
	h.streamsChanged(c, s.EventID)
	return c.NoContent(http.StatusNoContent)
}

// ConvertStreams handles POST /v1/admin/events/:id/streams/convert.  The
// body is optional; the first stream is named "Main" unless given.
func (h *AdminHandler) ConvertStreams(c echo.Context) error {
	var body streamNameRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
	}
	s, err := h.Streams.ConvertSingleToMulti(c.Request().Context(), c.Param("id"), body.Name)
	if err != nil {
		return writeError(c, h.Log, "convert streams", err)
	}
	h.audit(c, "event converted", zap.String("event_id", s.EventID), zap.String("stream_id", s.ID))
	h.streamsChanged(c, s.EventID)
	return c.JSON(http.StatusCreated, toAdminStream(s))
}

// IssueBypass handles POST /v1/admin/events/:id/bypass.  The token is
// returned once and never logged.
func (h *AdminHandler) IssueBypass(c echo.Context) error {
	tok, err := h.Bypass.Issue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "issue bypass token", err)
	}
	h.audit(c, "bypass token issued", zap.String("event_id", c.Param("id")))
	return c.JSON(http.StatusCreated, echo.Map{"bypass_token": tok})
}

// RotateBypass handles POST /v1/admin/events/:id/bypass/rotate.
func (h *AdminHandler) RotateBypass(c echo.Context) error {
	tok, err := h.Bypass.Rotate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "rotate bypass token", err)
	}
	h.audit(c, "bypass token rotated", zap.String("event_id", c.Param("id")))
	return c.JSON(http.StatusOK, echo.Map{"bypass_token": tok})
}

// RevokeBypass handles DELETE /v1/admin/events/:id/bypass.
func (h *AdminHandler) RevokeBypass(c echo.Context) error {
	if err := h.Bypass.Revoke(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, h.Log, "revoke bypass token", err)
	}
	h.audit(c, "bypass token revoked", zap.String("event_id", c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

// UpdateGeo handles PUT /v1/admin/events/:id/geo.
func (h *AdminHandler) UpdateGeo(c echo.Context) error {
	var body model.GeoSettings
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	id := strings.TrimSpace(c.Param("id"))
	e, err := h.Access.UpdateGeo(c.Request().Context(), id, body)
	if err != nil {
		return writeError(c, h.Log, "update geo settings", err)
	}
	h.audit(c, "geo settings updated", zap.String("event_id", id), zap.Bool("enabled", e.GeoBlockingEnabled))
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":             e.ID,
		"geo_blocking_enabled": e.GeoBlockingEnabled,
		"geo_lat":              e.GeoLat,
		"geo_lng":              e.GeoLng,
		"geo_radius_km":        e.RadiusKm(),
	})
}
