package schema

import (
	"errors"
	"time"
)

// BridgeConfig defines defaults and limits for the bridge core.
type BridgeConfig struct {
	// BufferMaxChunks caps each session's output buffer. The cap is a chunk
	// count, not a byte count, to keep bookkeeping cheap.
	BufferMaxChunks int
	// LayoutSettleDelay is how long the mode controller waits after a layout
	// change before refitting the primary surface.
	LayoutSettleDelay time.Duration
	// AccelDowngrade controls whether a failed acquisition of the accelerated
	// rendering context disables further attempts for the rest of the run.
	// Nil means the default (true).
	AccelDowngrade *bool
	// ProtocolVersion is the bridge protocol version announced by peers.
	ProtocolVersion int
}

// DefaultBufferMaxChunks is the default per-session buffer cap.
const DefaultBufferMaxChunks = 2000

// DefaultLayoutSettleDelay is the default refit delay after mode changes.
const DefaultLayoutSettleDelay = 120 * time.Millisecond

// ProtocolVersion is the wire protocol version this package implements.
const ProtocolVersion = 1

// NormalizeBridgeConfig applies defaults and validates the config.
func NormalizeBridgeConfig(cfg BridgeConfig) (BridgeConfig, error) {
	if cfg.BufferMaxChunks < 0 {
		return BridgeConfig{}, errors.New("buffer max chunks must not be negative")
	}
	if cfg.BufferMaxChunks == 0 {
		cfg.BufferMaxChunks = DefaultBufferMaxChunks
	}
	if cfg.LayoutSettleDelay <= 0 {
		cfg.LayoutSettleDelay = DefaultLayoutSettleDelay
	}
	if cfg.AccelDowngrade == nil {
		downgrade := true
		cfg.AccelDowngrade = &downgrade
	}
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = ProtocolVersion
	}
	return cfg, nil
}

// ValidMode reports whether mode is a recognized mode value.
func ValidMode(mode Mode) bool {
	switch mode {
	case ModeEditor, ModeTerminal, ModeDiff:
		return true
	default:
		return false
	}
}
