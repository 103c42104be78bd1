package core

import (
	"context"
	"errors"

	"pkt.systems/termbridge/internal/logx"
	"pkt.systems/termbridge/schema"
)

func (s *service) Spawn(ctx context.Context, req schema.SpawnRequest) (schema.SpawnResponse, error) {
	if ctx == nil {
		return schema.SpawnResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.SpawnResponse{}, schema.ErrTabNotFound
	}
	if t.kind() != schema.TabTerminal {
		s.mu.Unlock()
		return schema.SpawnResponse{}, schema.ErrNotTerminalTab
	}
	if t.state == tabReady && t.session() != "" {
		snap := t.Snapshot(s.isActiveLocked(t))
		s.mu.Unlock()
		return schema.SpawnResponse{Tab: snap, Attached: true}, nil
	}
	if t.pendingSpawn {
		snap := t.Snapshot(s.isActiveLocked(t))
		s.mu.Unlock()
		log.Debug("bridge spawn coalesced")
		return schema.SpawnResponse{Tab: snap, Pending: true}, nil
	}
	attached, send, connect, after := s.spawnLocked(t)
	snap := t.Snapshot(s.isActiveLocked(t))
	s.mu.Unlock()

	if send != nil {
		s.transport.Send(send)
	}
	if connect {
		s.transport.Connect(ctx)
	}
	if after != nil {
		after()
	}
	if attached {
		log.Info("bridge spawn reused session", "session", snap.SessionID)
		return schema.SpawnResponse{Tab: snap, Attached: true}, nil
	}
	log.Info("bridge spawn requested", "workspace", t.Workspace, "deferred", connect)
	return schema.SpawnResponse{Tab: snap, Pending: true}, nil
}

// spawnLocked starts a spawn for t, adopting a live workspace session when
// one exists. Returns the message to send, whether a connect attempt should
// start, and a continuation, all to run after unlocking.
func (s *service) spawnLocked(t *tab) (attached bool, send schema.BridgeMessage, connect bool, after func()) {
	if sess := s.reg.byWorkspace(t.Workspace); sess != nil && s.adoptableLocked(sess, t) {
		sess.owner = t.ID
		t.bindSession(sess.id)
		t.state = tabReady
		t.lastSession = ""
		if s.transport.Connected() {
			send = schema.AttachMessage{SessionID: sess.id}
		}
		if s.isActiveLocked(t) {
			after = s.activateLocked(t)
		}
		return true, send, false, after
	}
	t.pendingSpawn = true
	t.state = tabSpawning
	if !s.transport.Connected() {
		// Last-wins slot: a superseded tab goes back to idle so a later
		// spawn for it starts over instead of coalescing forever.
		if prev := s.tabs[s.deferred.spawnTab]; prev != nil && prev != t && prev.pendingSpawn {
			prev.pendingSpawn = false
			prev.state = tabIdle
			superseded := prev.ID
			after = func() {
				if s.sink != nil {
					s.sink.OnError(schema.ErrorEvent{
						TabID:   superseded,
						Code:    schema.ErrorCodeSpawn,
						Message: "deferred spawn replaced by a newer request, spawn again",
					})
				}
			}
		}
		s.deferred.spawnTab = t.ID
		return false, nil, true, after
	}
	s.pendingCreates = append(s.pendingCreates, t.Workspace)
	return false, schema.CreateMessage{Workspace: t.Workspace}, false, nil
}

// adoptableLocked reports whether sess can be bound to t: it is unowned, or
// its owning tab is gone or is t itself.
func (s *service) adoptableLocked(sess *session, t *tab) bool {
	if sess.owner == "" || sess.owner == t.ID {
		return true
	}
	owner := s.tabs[sess.owner]
	return owner == nil || owner.session() != sess.id
}

func (s *service) Attach(ctx context.Context, req schema.AttachRequest) (schema.AttachResponse, error) {
	if ctx == nil {
		return schema.AttachResponse{}, errors.New("missing context")
	}
	log := logx.WithSession(logx.WithTab(ctx, req.TabID), req.SessionID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.AttachResponse{}, schema.ErrTabNotFound
	}
	if t.kind() != schema.TabTerminal {
		s.mu.Unlock()
		return schema.AttachResponse{}, schema.ErrNotTerminalTab
	}
	sess := s.reg.get(req.SessionID)
	if sess == nil {
		s.mu.Unlock()
		log.Warn("bridge attach unknown session")
		return schema.AttachResponse{}, schema.ErrNeedsRespawn
	}
	if !s.transport.Connected() {
		s.mu.Unlock()
		return schema.AttachResponse{}, schema.ErrNotConnected
	}
	if prev := s.tabs[sess.owner]; prev != nil && prev != t && prev.session() == sess.id {
		prev.variant = terminalVariant{}
		prev.state = tabIdle
	}
	sess.stale = false
	sess.owner = t.ID
	t.bindSession(sess.id)
	t.state = tabReady
	t.lastSession = ""
	t.pendingSpawn = false
	if ws := s.workspaces[t.Workspace]; ws != nil {
		ws.active = t.ID
	}
	replayed := sess.buffer.Len()
	replay := sess.buffer.Bytes()
	accel := s.accelHandoffLocked(t)
	surface := t.surface
	snap := t.Snapshot(true)
	s.mu.Unlock()

	if accel != nil {
		accel()
	}
	// Full repaint: the surface may hold output from a previous binding.
	if surface != nil {
		surface.ClearCache()
		if len(replay) > 0 {
			surface.Write(replay)
		}
		surface.Focus()
	}
	s.transport.Send(schema.AttachMessage{SessionID: req.SessionID})
	log.Info("bridge attach", "replayed_chunks", replayed)
	return schema.AttachResponse{Tab: snap, Replayed: replayed}, nil
}

func (s *service) Kill(ctx context.Context, req schema.KillRequest) (schema.KillResponse, error) {
	if ctx == nil {
		return schema.KillResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.KillResponse{}, schema.ErrTabNotFound
	}
	if t.kind() != schema.TabTerminal {
		s.mu.Unlock()
		return schema.KillResponse{}, schema.ErrNotTerminalTab
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = t.session()
	}
	if sessionID == "" {
		sessionID = t.lastSession
	}
	if sessionID == "" {
		s.mu.Unlock()
		return schema.KillResponse{}, schema.ErrSessionNotFound
	}
	// Local teardown is immediate; the host confirmation and any in-flight
	// output for this session arrive later and are dropped by the registry.
	s.reg.remove(sessionID)
	t.variant = terminalVariant{}
	t.state = tabIdle
	t.lastSession = ""
	t.pendingSpawn = false
	if s.deferred.spawnTab == t.ID {
		s.deferred.spawnTab = ""
	}
	snap := t.Snapshot(s.isActiveLocked(t))
	s.mu.Unlock()

	if s.transport.Connected() {
		s.transport.Send(schema.CloseMessage{SessionID: sessionID})
	}
	log.Info("bridge kill", "session", sessionID)
	return schema.KillResponse{Tab: snap}, nil
}

func (s *service) Ensure(ctx context.Context, req schema.EnsureRequest) (schema.EnsureResponse, error) {
	if ctx == nil {
		return schema.EnsureResponse{}, errors.New("missing context")
	}

	s.mu.Lock()
	key := req.Workspace
	if key == "" {
		key = s.current
	}
	if key == "" {
		s.mu.Unlock()
		return schema.EnsureResponse{}, schema.ErrInvalidRequest
	}
	log := logx.WithWorkspace(ctx, key)
	t := s.terminalTabLocked(key)
	if t == nil {
		t = s.openTerminalLocked(key)
	}
	if t.state == tabReady && t.session() != "" {
		s.mu.Unlock()
		return schema.EnsureResponse{TabID: t.ID}, nil
	}
	if t.pendingSpawn {
		s.mu.Unlock()
		log.Debug("bridge ensure coalesced", "tab", t.ID)
		return schema.EnsureResponse{TabID: t.ID, Pending: true}, nil
	}
	attached, send, connect, after := s.spawnLocked(t)
	s.mu.Unlock()

	if send != nil {
		s.transport.Send(send)
	}
	if connect {
		s.transport.Connect(ctx)
	}
	if after != nil {
		after()
	}
	if attached {
		log.Info("bridge ensure reused session", "tab", t.ID)
		return schema.EnsureResponse{TabID: t.ID}, nil
	}
	log.Info("bridge ensure spawning", "tab", t.ID, "deferred", connect)
	return schema.EnsureResponse{TabID: t.ID, Pending: true}, nil
}

// terminalTabLocked returns the workspace's first terminal tab, if any.
func (s *service) terminalTabLocked(key schema.WorkspaceKey) *tab {
	ws := s.workspaces[key]
	if ws == nil {
		return nil
	}
	for _, tabID := range ws.order {
		if t := s.tabs[tabID]; t != nil && t.kind() == schema.TabTerminal {
			return t
		}
	}
	return nil
}

// openTerminalLocked creates a terminal tab in the workspace without
// activating it.
func (s *service) openTerminalLocked(key schema.WorkspaceKey) *tab {
	tabID := schema.TabID(newID())
	t := &tab{
		ID:        tabID,
		Workspace: key,
		variant:   terminalVariant{},
	}
	t.surface = s.surfaces.Create(tabID)
	t.surface.OnAccelLost(func() { s.accelLost(tabID) })
	ws := s.workspaces[key]
	if ws == nil {
		ws = &workspaceState{}
		s.workspaces[key] = ws
		s.wsOrder = append(s.wsOrder, key)
	}
	s.tabs[tabID] = t
	ws.order = append(ws.order, tabID)
	if ws.active == "" {
		ws.active = tabID
	}
	if s.current == "" {
		s.current = key
	}
	s.logger.Info("bridge terminal tab created", "tab", tabID, "workspace", key)
	return t
}

func (s *service) Sessions(ctx context.Context, req schema.SessionsRequest) (schema.SessionsResponse, error) {
	if ctx == nil {
		return schema.SessionsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.SessionsResponse{Sessions: s.reg.snapshots()}, nil
}

func (s *service) WriteInput(ctx context.Context, req schema.WriteInputRequest) (schema.WriteInputResponse, error) {
	if ctx == nil {
		return schema.WriteInputResponse{}, errors.New("missing context")
	}
	sessionID, err := s.boundSession(req.TabID)
	if err != nil {
		return schema.WriteInputResponse{}, err
	}
	if len(req.Data) == 0 {
		return schema.WriteInputResponse{}, nil
	}
	s.transport.Send(schema.InputMessage{SessionID: sessionID, Data: req.Data})
	return schema.WriteInputResponse{}, nil
}

func (s *service) Resize(ctx context.Context, req schema.ResizeRequest) (schema.ResizeResponse, error) {
	if ctx == nil {
		return schema.ResizeResponse{}, errors.New("missing context")
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		return schema.ResizeResponse{}, schema.ErrInvalidRequest
	}
	sessionID, err := s.boundSession(req.TabID)
	if err != nil {
		return schema.ResizeResponse{}, err
	}
	s.transport.Send(schema.ResizeMessage{SessionID: sessionID, Cols: req.Cols, Rows: req.Rows})
	return schema.ResizeResponse{}, nil
}

// boundSession resolves a tab to its live session for terminal I/O.
func (s *service) boundSession(tabID schema.TabID) (schema.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tabs[tabID]
	if t == nil {
		return "", schema.ErrTabNotFound
	}
	if t.kind() != schema.TabTerminal {
		return "", schema.ErrNotTerminalTab
	}
	if t.state == tabStale {
		return "", schema.ErrNeedsRespawn
	}
	sessionID := t.session()
	if sessionID == "" {
		return "", schema.ErrSessionNotFound
	}
	if !s.transport.Connected() {
		return "", schema.ErrNotConnected
	}
	return sessionID, nil
}

// isActiveLocked reports whether t is the active tab of the focused
// workspace.
func (s *service) isActiveLocked(t *tab) bool {
	if t == nil || t.Workspace != s.current {
		return false
	}
	ws := s.workspaces[t.Workspace]
	return ws != nil && ws.active == t.ID
}
