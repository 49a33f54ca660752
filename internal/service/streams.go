package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ppv-access/internal/model"
	"github.com/iliyamo/ppv-access/internal/repository"
)

// MaxStreamNameLen is the longest accepted stream name, in characters.
const MaxStreamNameLen = 100

// DefaultFirstStreamName names the stream created by a conversion when the
// caller gives none.
const DefaultFirstStreamName = "Main"

// ErrInvalidStreamName is returned for empty or over-long stream names.
var ErrInvalidStreamName = errors.New("stream name must be 1-100 characters")

// StreamRegistry manages the named feeds of an event.  The store keeps the
// one-default invariant; the registry validates input, provisions feeds on
// the video platform and builds the viewer-facing stream list.
type StreamRegistry struct {
	events   EventStore
	streams  StreamStore
	platform VideoPlatform
	log      *zap.Logger
}

// NewStreamRegistry wires a StreamRegistry.  platform may be nil, in which
// case streams are created without ingest identifiers.
func NewStreamRegistry(events EventStore, streams StreamStore, platform VideoPlatform, log *zap.Logger) *StreamRegistry {
	return &StreamRegistry{events: events, streams: streams, platform: platform, log: log.Named("streams")}
}

func cleanStreamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxStreamNameLen {
		return "", ErrInvalidStreamName
	}
	return name, nil
}

// AddStream appends a named stream to eventID.  The event's first stream
// becomes its default.
func (r *StreamRegistry) AddStream(ctx context.Context, eventID, name string) (*model.Stream, error) {
	name, err := cleanStreamName(name)
	if err != nil {
		return nil, err
	}
	e, err := r.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.HasLegacyStream() {
		existing, err := r.streams.ListStreams(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, repository.ErrLegacyStream
		}
	}

	s := &model.Stream{ID: uuid.NewString(), EventID: eventID, Name: name, Status: model.StreamIdle}
	if r.platform != nil {
		ls, err := r.platform.CreateLiveStream(ctx)
		if err != nil {
			return nil, err
		}
		s.MuxStreamID, s.MuxStreamKey, s.PlaybackID = ls.StreamID, ls.StreamKey, ls.PlaybackID
	}
	if err := r.streams.AddStream(ctx, s); err != nil {
		return nil, err
	}
	r.log.Info("stream added", zap.String("event_id", eventID), zap.String("stream_id", s.ID), zap.Bool("default", s.IsDefault))
	return s, nil
}

// SetDefault makes streamID its event's default stream.
func (r *StreamRegistry) SetDefault(ctx context.Context, streamID string) (*model.Stream, error) {
	s, err := r.streams.SetDefault(ctx, streamID)
	if err != nil {
		return nil, err
	}
	r.log.Info("default stream changed", zap.String("event_id", s.EventID), zap.String("stream_id", s.ID))
	return s, nil
}

// GetStream returns one stream, including ingest identifiers.
func (r *StreamRegistry) GetStream(ctx context.Context, streamID string) (*model.Stream, error) {
	return r.streams.GetStream(ctx, streamID)
}

// RemoveStream deletes streamID, promoting another default if needed.
func (r *StreamRegistry) RemoveStream(ctx context.Context, streamID string) error {
	if err := r.streams.RemoveStream(ctx, streamID); err != nil {
		return err
	}
	r.log.Info("stream removed", zap.String("stream_id", streamID))
	return nil
}

// ListStreams returns all of the event's streams in display order,
// including disabled ones.
func (r *StreamRegistry) ListStreams(ctx context.Context, eventID string) ([]model.Stream, error) {
	if _, err := r.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return r.streams.ListStreams(ctx, eventID)
}

// ConvertSingleToMulti moves the event's legacy single stream into the
// streams table as its default stream.  An empty name uses
// DefaultFirstStreamName.
func (r *StreamRegistry) ConvertSingleToMulti(ctx context.Context, eventID, firstStreamName string) (*model.Stream, error) {
	if strings.TrimSpace(firstStreamName) == "" {
		firstStreamName = DefaultFirstStreamName
	}
	name, err := cleanStreamName(firstStreamName)
	if err != nil {
		return nil, err
	}
	s := &model.Stream{ID: uuid.NewString(), Name: name, Status: model.StreamIdle}
	if err := r.streams.ConvertSingleToMulti(ctx, eventID, s); err != nil {
		return nil, err
	}
	r.log.Info("event converted to multi-stream", zap.String("event_id", eventID), zap.String("stream_id", s.ID))
	return s, nil
}

// SetEnabled disables a stream or puts it back in rotation.
func (r *StreamRegistry) SetEnabled(ctx context.Context, streamID string, enabled bool) (*model.Stream, error) {
	s, err := r.streams.SetEnabled(ctx, streamID, enabled)
	if err != nil {
		return nil, err
	}
	r.log.Info("stream status set", zap.String("stream_id", streamID), zap.String("status", s.Status))
	return s, nil
}

// EventLive reports whether any of the event's feeds is live.  Single-stream
// events ask the platform about their legacy stream directly.
func (r *StreamRegistry) EventLive(ctx context.Context, eventID string) (bool, error) {
	e, err := r.events.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	streams, err := r.streams.ListStreams(ctx, eventID)
	if err != nil {
		return false, err
	}
	if len(streams) > 0 {
		for i := range streams {
			if streams[i].IsLive() {
				return true, nil
			}
		}
		return false, nil
	}
	if r.platform == nil || e.MuxStreamID == nil || *e.MuxStreamID == "" {
		return false, nil
	}
	status, err := r.platform.StreamStatus(ctx, *e.MuxStreamID)
	if err != nil {
		return false, err
	}
	return status == model.StreamLive, nil
}

// ViewerStreams returns the streams a viewer may pick from and the id of
// the one to start on.  Disabled streams are hidden.  A legacy single-stream
// event yields one synthetic stream with id model.LegacyStreamID.
func (r *StreamRegistry) ViewerStreams(ctx context.Context, e *model.Event) ([]model.Stream, string, error) {
	all, err := r.streams.ListStreams(ctx, e.ID)
	if err != nil {
		return nil, "", err
	}
	if len(all) == 0 {
		if !e.HasLegacyStream() {
			return nil, "", nil
		}
		legacy := model.Stream{
			ID:         model.LegacyStreamID,
			EventID:    e.ID,
			Name:       DefaultFirstStreamName,
			IsDefault:  true,
			Status:     model.StreamIdle,
			PlaybackID: *e.MuxPlaybackID,
		}
		return []model.Stream{legacy}, legacy.ID, nil
	}

	visible := make([]model.Stream, 0, len(all))
	defaultID := ""
	for _, s := range all {
		if s.Status == model.StreamDisabled {
			continue
		}
		if s.IsDefault {
			defaultID = s.ID
		}
		visible = append(visible, s)
	}
	if defaultID == "" && len(visible) > 0 {
		defaultID = visible[0].ID
	}
	return visible, defaultID, nil
}
