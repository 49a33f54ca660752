// Package repository defines error types that are reused across multiple
// repositories and stores. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure scenarios
// without knowing which backend produced them.
package repository

import "errors"

// ErrConflict is returned when an operation cannot proceed because
// of the current state of a resource. Handlers should translate this
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// Lookup failures. Handlers translate these into HTTP 404.
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrSessionNotFound  = errors.New("session not found")
)

// Stream registry state conflicts. Each wraps ErrConflict so handlers can
// map them to 409 with a single errors.Is check.
var (
	// ErrAlreadyMulti: the event already has streams, so a single-stream
	// conversion would discard them.
	ErrAlreadyMulti = wrapConflict("event already has streams")
	// ErrNoLegacyStream: the event has no legacy playback identifier to
	// migrate.
	ErrNoLegacyStream = wrapConflict("event has no legacy stream to convert")
	// ErrLegacyStream: the event still serves a legacy single stream and
	// must be converted before streams are added.
	ErrLegacyStream = wrapConflict("event has a legacy stream; convert it first")
)

type conflictError struct{ msg string }

func (e *conflictError) Error() string        { return e.msg }
func (e *conflictError) Is(target error) bool { return target == ErrConflict }

func wrapConflict(msg string) error { return &conflictError{msg: msg} }
