package schema

// Events delivered to the host shell. Failures never cross the bridge
// boundary as panics or errors on unrelated calls; they arrive here as typed
// events so the host decides the user-visible treatment.

// ReadyEvent reports a tab whose session is spawned or attached and live.
type ReadyEvent struct {
	TabID     TabID
	SessionID SessionID
	Workspace WorkspaceKey
}

// ErrorEventCode classifies bridge errors for the host.
type ErrorEventCode string

const (
	// ErrorCodeConnection indicates the transport is unavailable.
	ErrorCodeConnection ErrorEventCode = "connection"
	// ErrorCodeSpawn indicates a spawn request failed.
	ErrorCodeSpawn ErrorEventCode = "spawn_failed"
	// ErrorCodeNeedsRespawn indicates a stale session cannot be re-attached.
	ErrorCodeNeedsRespawn ErrorEventCode = "needs_respawn"
	// ErrorCodeHost relays an error reported by the session host.
	ErrorCodeHost ErrorEventCode = "host_error"
)

// ErrorEvent reports a failure to the host shell. TabID may be empty when the
// failure is not tied to a tab.
type ErrorEvent struct {
	TabID   TabID
	Code    ErrorEventCode
	Message string
}

// ClosedEvent reports a session that ended, with its exit code.
type ClosedEvent struct {
	TabID     TabID
	SessionID SessionID
	Code      int
}

// ModeEvent reports an applied mode transition.
type ModeEvent struct {
	Mode      Mode
	Workspace WorkspaceKey
}
