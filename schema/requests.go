package schema

// Tab lifecycle.

// OpenTabRequest describes a request to open a tab.
type OpenTabRequest struct {
	Workspace WorkspaceKey
	Kind      TabKind
	// Path is required for editor and diff tabs, ignored for terminals.
	Path string
}

// OpenTabResponse reports the opened tab.
type OpenTabResponse struct {
	Tab TabSnapshot
}

// CloseTabRequest describes a request to close a tab.
type CloseTabRequest struct {
	TabID TabID
}

// CloseTabResponse reports the closed tab snapshot.
type CloseTabResponse struct {
	Tab TabSnapshot
}

// ActivateTabRequest describes a request to activate a tab.
type ActivateTabRequest struct {
	TabID TabID
}

// ActivateTabResponse reports the activated tab snapshot.
type ActivateTabResponse struct {
	Tab TabSnapshot
}

// ListTabsRequest describes a request to list workspaces and tabs.
type ListTabsRequest struct {
	// Workspace narrows the listing when set.
	Workspace WorkspaceKey
}

// ListTabsResponse reports workspace tab sets.
type ListTabsResponse struct {
	Workspaces []WorkspaceSnapshot
	Mode       Mode
}

// Session lifecycle.

// SpawnRequest asks for a terminal session behind a tab.
type SpawnRequest struct {
	TabID TabID
}

// SpawnResponse reports the spawn outcome. Attached is set when an existing
// session was reused instead of spawning. Pending is set when the request was
// recorded (or coalesced) and the host's confirmation is still outstanding.
type SpawnResponse struct {
	Tab      TabSnapshot
	Attached bool
	Pending  bool
}

// AttachRequest rebinds a tab to a known session.
type AttachRequest struct {
	TabID     TabID
	SessionID SessionID
}

// AttachResponse reports the rebound tab and how many buffered chunks were
// replayed into the surface.
type AttachResponse struct {
	Tab      TabSnapshot
	Replayed int
}

// KillRequest tears down a tab's session.
type KillRequest struct {
	TabID     TabID
	SessionID SessionID
}

// KillResponse reports the tab after teardown.
type KillResponse struct {
	Tab TabSnapshot
}

// EnsureRequest asks that a workspace has a live terminal session.
type EnsureRequest struct {
	Workspace WorkspaceKey
}

// EnsureResponse reports which tab serves the workspace terminal. Pending is
// set when a spawn is outstanding or deferred until the transport connects.
type EnsureResponse struct {
	TabID   TabID
	Pending bool
}

// SessionsRequest describes a request for registry snapshots.
type SessionsRequest struct{}

// SessionsResponse reports registry state.
type SessionsResponse struct {
	Sessions []SessionSnapshot
}

// Terminal I/O.

// WriteInputRequest forwards input bytes to a tab's session.
type WriteInputRequest struct {
	TabID TabID
	Data  []byte
}

// WriteInputResponse acknowledges forwarded input.
type WriteInputResponse struct{}

// ResizeRequest forwards a terminal resize to a tab's session.
type ResizeRequest struct {
	TabID TabID
	Cols  int
	Rows  int
}

// ResizeResponse acknowledges a forwarded resize.
type ResizeResponse struct{}

// Mode control.

// SetModeRequest switches the visible tab category.
type SetModeRequest struct {
	Mode Mode
}

// SetModeResponse reports the applied mode. Changed is false when the mode
// was already current and the call was a no-op.
type SetModeResponse struct {
	Mode    Mode
	Changed bool
}
