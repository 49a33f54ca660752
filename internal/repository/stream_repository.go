package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ppv-access/internal/model"
)

const (
	lockEventSQL    = `SELECT is_multi_stream, mux_stream_id, mux_stream_key, mux_playback_id FROM events WHERE id = ? FOR UPDATE`
	streamStatsSQL  = `SELECT COUNT(*), COALESCE(MAX(position), -1) FROM streams WHERE event_id = ?`
	insertStreamSQL = `INSERT INTO streams (id, event_id, name, position, is_default, status, mux_stream_id, mux_stream_key, mux_playback_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	markMultiSQL        = `UPDATE events SET is_multi_stream = 1 WHERE id = ?`
	streamOwnerSQL      = `SELECT event_id, is_default FROM streams WHERE id = ?`
	setDefaultSQL       = `UPDATE streams SET is_default = (id = ?) WHERE event_id = ?`
	deleteStreamSQL     = `DELETE FROM streams WHERE id = ?`
	promoteDefaultSQL   = `UPDATE streams SET is_default = 1 WHERE event_id = ? ORDER BY position, created_at LIMIT 1`
	selectStreamColumns = `SELECT id, event_id, name, position, is_default, status, mux_stream_id, mux_stream_key, mux_playback_id, created_at FROM streams`
	listStreamsSQL      = selectStreamColumns + ` WHERE event_id = ? ORDER BY position, created_at`
	getStreamSQL        = selectStreamColumns + ` WHERE id = ?`
	pollableStreamsSQL  = selectStreamColumns + ` WHERE status <> 'disabled' AND mux_stream_id <> '' ORDER BY event_id, position`
	updateStatusSQL     = `UPDATE streams SET status = ? WHERE id = ? AND status <> 'disabled'`
	setEnabledSQL       = `UPDATE streams SET status = ? WHERE id = ?`
)

// StreamRepo persists the feeds of multi-stream events.  Every mutation
// runs in a transaction that first locks the owning event row, so two
// admins editing the same event serialize and the one-default invariant
// holds after every commit.
type StreamRepo struct {
	db *sql.DB
}

// NewStreamRepo constructs a StreamRepo with the given DB handle.
func NewStreamRepo(db *sql.DB) *StreamRepo { return &StreamRepo{db: db} }

type lockedEvent struct {
	multi                   bool
	muxID, muxKey, playback sql.NullString
}

func lockEventTx(ctx context.Context, tx *sql.Tx, eventID string) (*lockedEvent, error) {
	var ev lockedEvent
	err := tx.QueryRowContext(ctx, lockEventSQL, eventID).Scan(&ev.multi, &ev.muxID, &ev.muxKey, &ev.playback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return &ev, err
}

func streamStatsTx(ctx context.Context, tx *sql.Tx, eventID string) (count, maxPos int, err error) {
	err = tx.QueryRowContext(ctx, streamStatsSQL, eventID).Scan(&count, &maxPos)
	return count, maxPos, err
}

func insertStreamTx(ctx context.Context, tx *sql.Tx, s *model.Stream) error {
	_, err := tx.ExecContext(ctx, insertStreamSQL, s.ID, s.EventID, s.Name, s.Position, s.IsDefault,
		s.Status, s.MuxStreamID, s.MuxStreamKey, s.PlaybackID)
	return err
}

// withTx runs fn in a transaction, committing on success.
func (r *StreamRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddStream appends s to its event.  Position and IsDefault are assigned
// here: the event's first stream becomes the default.  The event is flagged
// multi-stream in the same transaction.  Events still serving a legacy
// single stream must be converted first (ErrLegacyStream).
func (r *StreamRepo) AddStream(ctx context.Context, s *model.Stream) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		ev, err := lockEventTx(ctx, tx, s.EventID)
		if err != nil {
			return err
		}
		count, maxPos, err := streamStatsTx(ctx, tx, s.EventID)
		if err != nil {
			return err
		}
		if count == 0 && ev.playback.Valid && ev.playback.String != "" {
			return ErrLegacyStream
		}
		s.Position = maxPos + 1
		s.IsDefault = count == 0
		if s.Status == "" {
			s.Status = model.StreamIdle
		}
		if err := insertStreamTx(ctx, tx, s); err != nil {
			return err
		}
		if !ev.multi {
			if _, err := tx.ExecContext(ctx, markMultiSQL, s.EventID); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetDefault makes streamID the default of its event.  One UPDATE sets the
// flag on the target and clears it on every sibling.
func (r *StreamRepo) SetDefault(ctx context.Context, streamID string) (*model.Stream, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		eventID, _, err := streamOwnerTx(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if _, err := lockEventTx(ctx, tx, eventID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, setDefaultSQL, streamID, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.GetStream(ctx, streamID)
}

// RemoveStream deletes a stream.  When the default is removed, the
// lowest-positioned remaining stream is promoted in the same transaction.
func (r *StreamRepo) RemoveStream(ctx context.Context, streamID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		eventID, wasDefault, err := streamOwnerTx(ctx, tx, streamID)
		if err != nil {
			return err
		}
		if _, err := lockEventTx(ctx, tx, eventID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, deleteStreamSQL, streamID); err != nil {
			return err
		}
		if wasDefault {
			if _, err := tx.ExecContext(ctx, promoteDefaultSQL, eventID); err != nil {
				return err
			}
		}
		return nil
	})
}

func streamOwnerTx(ctx context.Context, tx *sql.Tx, streamID string) (eventID string, isDefault bool, err error) {
	err = tx.QueryRowContext(ctx, streamOwnerSQL, streamID).Scan(&eventID, &isDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrStreamNotFound
	}
	return eventID, isDefault, err
}

// ConvertSingleToMulti moves the event's legacy single-stream identifiers
// into s, which becomes the event's only and default stream.  The legacy
// columns are left in place so already-issued player links keep working.
// Nothing is written unless every step succeeds.
func (r *StreamRepo) ConvertSingleToMulti(ctx context.Context, eventID string, s *model.Stream) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		ev, err := lockEventTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		count, _, err := streamStatsTx(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMulti
		}
		if !ev.playback.Valid || ev.playback.String == "" {
			return ErrNoLegacyStream
		}
		s.EventID = eventID
		s.Position = 0
		s.IsDefault = true
		if s.Status == "" {
			s.Status = model.StreamIdle
		}
		s.MuxStreamID = ev.muxID.String
		s.MuxStreamKey = ev.muxKey.String
		s.PlaybackID = ev.playback.String
		if err := insertStreamTx(ctx, tx, s); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, markMultiSQL, eventID)
		return err
	})
}

func scanStreams(rows *sql.Rows) ([]model.Stream, error) {
	defer rows.Close()
	var out []model.Stream
	for rows.Next() {
		var s model.Stream
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.Position, &s.IsDefault, &s.Status,
			&s.MuxStreamID, &s.MuxStreamKey, &s.PlaybackID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListStreams returns the event's streams in display order.
func (r *StreamRepo) ListStreams(ctx context.Context, eventID string) ([]model.Stream, error) {
	rows, err := r.db.QueryContext(ctx, listStreamsSQL, eventID)
	if err != nil {
		return nil, err
	}
	return scanStreams(rows)
}

// GetStream loads a single stream.
func (r *StreamRepo) GetStream(ctx context.Context, streamID string) (*model.Stream, error) {
	var s model.Stream
	err := r.db.QueryRowContext(ctx, getStreamSQL, streamID).Scan(&s.ID, &s.EventID, &s.Name, &s.Position,
		&s.IsDefault, &s.Status, &s.MuxStreamID, &s.MuxStreamKey, &s.PlaybackID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStreamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListPollable returns every enabled stream that has a platform identifier.
func (r *StreamRepo) ListPollable(ctx context.Context) ([]model.Stream, error) {
	rows, err := r.db.QueryContext(ctx, pollableStreamsSQL)
	if err != nil {
		return nil, err
	}
	return scanStreams(rows)
}

// UpdateStatus records the platform-reported status.  Disabled streams keep
// their status.
func (r *StreamRepo) UpdateStatus(ctx context.Context, streamID, status string) error {
	_, err := r.db.ExecContext(ctx, updateStatusSQL, status, streamID)
	return err
}

// SetEnabled disables a stream or returns it to idle.  Disabled streams are
// skipped by the status poller and hidden from viewers.
func (r *StreamRepo) SetEnabled(ctx context.Context, streamID string, enabled bool) (*model.Stream, error) {
	status := model.StreamDisabled
	if enabled {
		status = model.StreamIdle
	}
	if _, err := r.db.ExecContext(ctx, setEnabledSQL, status, streamID); err != nil {
		return nil, err
	}
	return r.GetStream(ctx, streamID)
}
