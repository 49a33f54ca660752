package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StatusPoller periodically refreshes the cached live status of every
// enabled stream from the video platform.
type StatusPoller struct {
	streams  StreamStore
	platform VideoPlatform
	every    time.Duration
	timeout  time.Duration
	fanout   int
	log      *zap.Logger
}

// NewStatusPoller returns a poller that runs every interval, gives each run
// timeout to finish and keeps at most fanout platform requests in flight.
func NewStatusPoller(streams StreamStore, platform VideoPlatform, every, timeout time.Duration, fanout int, log *zap.Logger) *StatusPoller {
	if fanout < 1 {
		fanout = 1
	}
	if timeout <= 0 || (every > 0 && timeout > every) {
		timeout = every
	}
	return &StatusPoller{streams: streams, platform: platform, every: every, timeout: timeout, fanout: fanout, log: log.Named("status-poller")}
}

// Run polls until ctx is cancelled.  A non-positive interval disables it.
func (p *StatusPoller) Run(ctx context.Context) {
	if p.every <= 0 || p.platform == nil {
		return
	}
	t := time.NewTicker(p.every)
	defer t.Stop()
	for {
		if n, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("status poll failed", zap.Int("updated", n), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// PollOnce refreshes every pollable stream once and returns how many
// statuses were stored.  Per-stream failures are logged and skipped; the
// returned error is the first of them.
func (p *StatusPoller) PollOnce(ctx context.Context) (int, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	streams, err := p.streams.ListPollable(ctx)
	if err != nil {
		return 0, err
	}

	results := make([]bool, len(streams))
	var g errgroup.Group
	g.SetLimit(p.fanout)
	for i := range streams {
		i, s := i, streams[i]
		g.Go(func() error {
			status, err := p.platform.StreamStatus(ctx, s.MuxStreamID)
			if err != nil {
				p.log.Debug("status lookup failed", zap.String("stream_id", s.ID), zap.Error(err))
				return err
			}
			if status == s.Status {
				return nil
			}
			if err := p.streams.UpdateStatus(ctx, s.ID, status); err != nil {
				return err
			}
			results[i] = true
			return nil
		})
	}
	err = g.Wait()
	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n, err
}
