package core

import "pkt.systems/termbridge/schema"

// tabState is the per-tab protocol state machine. Stale retains the last
// session id for a future re-attach; Idle does not.
type tabState int

const (
	tabIdle tabState = iota
	tabSpawning
	tabReady
	tabStale
)

func (s tabState) String() string {
	switch s {
	case tabIdle:
		return "idle"
	case tabSpawning:
		return "spawning"
	case tabReady:
		return "ready"
	case tabStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tabVariant carries the kind-specific half of a tab. Using a closed variant
// instead of nullable fields keeps "terminal tab has a session id" a type
// fact rather than a runtime convention.
type tabVariant interface {
	kind() schema.TabKind
}

type terminalVariant struct {
	session schema.SessionID
}

type editorVariant struct {
	path string
}

type diffVariant struct {
	path string
}

func (terminalVariant) kind() schema.TabKind { return schema.TabTerminal }
func (editorVariant) kind() schema.TabKind   { return schema.TabEditor }
func (diffVariant) kind() schema.TabKind     { return schema.TabDiff }

// tab tracks one UI tab and, for terminals, its protocol state.
type tab struct {
	ID        schema.TabID
	Workspace schema.WorkspaceKey
	variant   tabVariant
	surface   Surface
	accel     accelState
	state     tabState
	// pendingSpawn marks an outstanding spawn request; at most one per tab,
	// additional requests coalesce into it.
	pendingSpawn bool
	// lastSession is the session retained while state is tabStale.
	lastSession schema.SessionID
}

func (t *tab) kind() schema.TabKind {
	return t.variant.kind()
}

// session returns the bound session id for terminal tabs, empty otherwise.
func (t *tab) session() schema.SessionID {
	if term, ok := t.variant.(terminalVariant); ok {
		return term.session
	}
	return ""
}

func (t *tab) bindSession(id schema.SessionID) {
	if _, ok := t.variant.(terminalVariant); ok {
		t.variant = terminalVariant{session: id}
	}
}

func (t *tab) path() string {
	switch v := t.variant.(type) {
	case editorVariant:
		return v.path
	case diffVariant:
		return v.path
	default:
		return ""
	}
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active bool) schema.TabSnapshot {
	return schema.TabSnapshot{
		ID:        t.ID,
		Kind:      t.kind(),
		Workspace: t.Workspace,
		SessionID: t.session(),
		Path:      t.path(),
		Stale:     t.state == tabStale,
		Active:    active,
		HasAccel:  t.accel == accelHeld,
	}
}
