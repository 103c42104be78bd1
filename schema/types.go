package schema

// SessionID identifies a live or buffered terminal session, independently of
// which tab currently displays it.
type SessionID string

// TabID identifies a UI tab.
type TabID string

// WorkspaceKey identifies a workspace ("project/workspace").
type WorkspaceKey string

// TabKind describes what a tab displays.
type TabKind string

const (
	// TabTerminal is a tab bound to a terminal session.
	TabTerminal TabKind = "terminal"
	// TabEditor is a tab showing an editor view.
	TabEditor TabKind = "editor"
	// TabDiff is a tab showing a diff view.
	TabDiff TabKind = "diff"
)

// Mode selects which tab category is visible in the host shell.
type Mode string

const (
	// ModeEditor shows the regular editing layout.
	ModeEditor Mode = "editor"
	// ModeTerminal shows the terminal layout with chrome collapsed.
	ModeTerminal Mode = "terminal"
	// ModeDiff narrows visible tabs to diff tabs.
	ModeDiff Mode = "diff"
)

// SessionStatus describes a session as reported by the session host.
type SessionStatus string

const (
	// SessionRunning indicates the underlying process is alive.
	SessionRunning SessionStatus = "running"
	// SessionExited indicates the underlying process has exited.
	SessionExited SessionStatus = "exited"
)
