package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/service"
)

// PublicHandler serves unauthenticated event information.
type PublicHandler struct {
	Streams *service.StreamRegistry
	Log     *zap.Logger
}

// NewPublicHandler constructs a PublicHandler and panics if streams is nil.
func NewPublicHandler(streams *service.StreamRegistry, log *zap.Logger) *PublicHandler {
	if streams == nil {
		panic("nil stream registry passed to NewPublicHandler")
	}
	return &PublicHandler{Streams: streams, Log: log.Named("public-handler")}
}

type publicStream struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	IsDefault bool   `json:"is_default"`
	Live      bool   `json:"live"`
}

// GetEventStreams handles GET /v1/events/:id/streams.  Playback ids are
// only handed out with a session, so the public list omits them.
func (h *PublicHandler) GetEventStreams(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	streams, err := h.Streams.ListStreams(ctx, id)
	if err != nil {
		return writeError(c, h.Log, "list streams", err)
	}
	live, err := h.Streams.EventLive(ctx, id)
	if err != nil {
		h.Log.Warn("live status unavailable", zap.String("event_id", id), zap.Error(err))
	}
	out := make([]publicStream, 0, len(streams))
	for _, s := range streams {
		if s.Status == model.StreamDisabled {
			continue
		}
		out = append(out, publicStream{ID: s.ID, Name: s.Name, Position: s.Position, IsDefault: s.IsDefault, Live: s.IsLive()})
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": id, "live": live, "streams": out})
}
