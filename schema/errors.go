package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrSessionNotFound indicates a session id is unknown to the registry.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotTerminalTab indicates a terminal operation targeted a non-terminal tab.
	ErrNotTerminalTab = errors.New("not a terminal tab")
	// ErrNotConnected indicates the transport is not connected.
	ErrNotConnected = errors.New("transport not connected")
	// ErrNeedsRespawn indicates a stale session cannot be re-attached and a
	// fresh spawn is required.
	ErrNeedsRespawn = errors.New("session needs respawn")
	// ErrAccelUnavailable indicates the accelerated rendering context could
	// not be acquired.
	ErrAccelUnavailable = errors.New("accelerated context unavailable")
	// ErrUnknownMessage indicates a wire frame carried an unrecognized type tag.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrInvalidMode indicates an unrecognized mode value.
	ErrInvalidMode = errors.New("invalid mode")
)
