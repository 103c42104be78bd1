package core

import "pkt.systems/termbridge/schema"

// Surface is the terminal-rendering collaborator owned by the host shell.
// One surface backs each terminal tab; the bridge writes output into it and
// arbitrates its accelerated rendering context.
type Surface interface {
	// Write renders output bytes.
	Write(data []byte)
	// Fit recomputes the surface geometry after a layout change.
	Fit()
	// Focus moves input focus to the surface.
	Focus()
	// ClearCache drops cached glyph state before a full replay.
	ClearCache()
	// AcquireAccel claims the accelerated rendering context.
	AcquireAccel() error
	// ReleaseAccel returns the accelerated rendering context. Safe to call
	// when not held.
	ReleaseAccel()
	// OnAccelLost registers a callback invoked when the context is revoked
	// externally.
	OnAccelLost(fn func())
}

// SurfaceProvider creates rendering surfaces for terminal tabs.
type SurfaceProvider interface {
	Create(tabID schema.TabID) Surface
}
