package schema

// TabSnapshot is a read-only view of tab state for the host shell.
type TabSnapshot struct {
	ID        TabID
	Kind      TabKind
	Workspace WorkspaceKey
	SessionID SessionID
	Path      string
	Stale     bool
	Active    bool
	HasAccel  bool
}

// SessionSnapshot is a read-only view of registry state.
type SessionSnapshot struct {
	ID        SessionID
	Workspace WorkspaceKey
	Cwd       string
	Shell     string
	OwnerTab  TabID
	Chunks    int
	Stale     bool
}

// WorkspaceSnapshot reports a workspace's tab set and active tab.
type WorkspaceSnapshot struct {
	Key       WorkspaceKey
	Tabs      []TabSnapshot
	ActiveTab TabID
}
