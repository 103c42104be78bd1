package core

import (
	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

// session is one registry record. Buffers are owned exclusively by the
// registry; other components read and append only through its methods.
type session struct {
	id        schema.SessionID
	workspace schema.WorkspaceKey
	cwd       string
	shell     string
	owner     schema.TabID
	stale     bool
	buffer    *chunkBuffer
}

// registry owns the bounded output buffers keyed by session id.
type registry struct {
	sessions  map[schema.SessionID]*session
	maxChunks int
	logger    pslog.Logger
}

func newRegistry(maxChunks int, logger pslog.Logger) *registry {
	return &registry{
		sessions:  make(map[schema.SessionID]*session),
		maxChunks: maxChunks,
		logger:    logger,
	}
}

// create installs a session with an empty bounded buffer.
func (r *registry) create(id schema.SessionID, workspace schema.WorkspaceKey, cwd, shell string, owner schema.TabID) *session {
	sess := &session{
		id:        id,
		workspace: workspace,
		cwd:       cwd,
		shell:     shell,
		owner:     owner,
		buffer:    newChunkBuffer(r.maxChunks),
	}
	r.sessions[id] = sess
	r.logger.Info("registry session created", "session", id, "workspace", workspace, "tab", owner)
	return sess
}

func (r *registry) get(id schema.SessionID) *session {
	return r.sessions[id]
}

// append buffers an output chunk. Unknown ids are a no-op: tab-close races
// leave late output in flight and that is expected. Stale sessions accept no
// new output until re-attached or respawned.
func (r *registry) append(id schema.SessionID, data []byte) bool {
	sess := r.sessions[id]
	if sess == nil || sess.stale {
		return false
	}
	sess.buffer.Append(data)
	return true
}

// remove deletes the record and its buffer.
func (r *registry) remove(id schema.SessionID) {
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.logger.Info("registry session removed", "session", id)
}

// markAllStale flags every session stale without deleting buffers, so a later
// re-attach can replay them.
func (r *registry) markAllStale() {
	for _, sess := range r.sessions {
		sess.stale = true
	}
	if len(r.sessions) > 0 {
		r.logger.Info("registry sessions marked stale", "count", len(r.sessions))
	}
}

// byWorkspace returns the first non-stale session for a workspace, if any.
func (r *registry) byWorkspace(workspace schema.WorkspaceKey) *session {
	for _, sess := range r.sessions {
		if sess.workspace == workspace && !sess.stale {
			return sess
		}
	}
	return nil
}

func (r *registry) snapshots() []schema.SessionSnapshot {
	out := make([]schema.SessionSnapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, schema.SessionSnapshot{
			ID:        sess.id,
			Workspace: sess.workspace,
			Cwd:       sess.cwd,
			Shell:     sess.shell,
			OwnerTab:  sess.owner,
			Chunks:    sess.buffer.Len(),
			Stale:     sess.stale,
		})
	}
	return out
}
