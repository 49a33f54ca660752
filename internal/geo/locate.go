package geo

import (
	"context"
	"errors"
	"time"
)

// DefaultLocateTimeout bounds how long a viewer client waits for the
// device to produce a position.
const DefaultLocateTimeout = 10 * time.Second

// LocationSource produces the current device location.  Implementations
// wrap a platform location API and may block until the user answers a
// permission prompt.
type LocationSource interface {
	Locate(ctx context.Context) (Point, error)
}

// LocationSourceFunc adapts a function to LocationSource.
type LocationSourceFunc func(ctx context.Context) (Point, error)

// Locate calls fn.
func (fn LocationSourceFunc) Locate(ctx context.Context) (Point, error) { return fn(ctx) }

// Locate asks src for a position, giving up after timeout.  A timeout, a
// denial, any other source error or an invalid coordinate all map to
// ErrLocationUnavailable; none of them is ever reported as a usable
// position.
func Locate(ctx context.Context, src LocationSource, timeout time.Duration) (Point, error) {
	if src == nil {
		return Point{}, ErrLocationUnavailable
	}
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type located struct {
		p   Point
		err error
	}
	ch := make(chan located, 1)
	go func() {
		p, err := src.Locate(ctx)
		ch <- located{p, err}
	}()

	select {
	case <-ctx.Done():
		return Point{}, errors.Join(ErrLocationUnavailable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Point{}, errors.Join(ErrLocationUnavailable, r.err)
		}
		if !r.p.Valid() {
			return Point{}, ErrLocationUnavailable
		}
		return r.p, nil
	}
}
