package core

import (
	"context"
	"fmt"

	"pkt.systems/termbridge/internal/logx"
	"pkt.systems/termbridge/schema"
)

func (s *service) TransportOpened(ctx context.Context) {
	log := logx.Ctx(ctx)
	log.Info("bridge transport opened")

	s.mu.Lock()
	var deferredTab *tab
	if s.deferred.spawnTab != "" {
		deferredTab = s.tabs[s.deferred.spawnTab]
		s.deferred.spawnTab = ""
	}
	var create schema.BridgeMessage
	if deferredTab != nil && deferredTab.pendingSpawn {
		create = schema.CreateMessage{Workspace: deferredTab.Workspace}
		s.pendingCreates = append(s.pendingCreates, deferredTab.Workspace)
	}
	wantList := false
	for _, t := range s.tabs {
		if t.state == tabStale {
			wantList = true
			break
		}
	}
	s.mu.Unlock()

	if create != nil {
		s.transport.Send(create)
	}
	if wantList {
		// Learn which sessions survived so stale tabs can re-attach.
		s.transport.Send(schema.ListMessage{})
	}
}

func (s *service) TransportClosed(ctx context.Context, err error) {
	log := logx.Ctx(ctx)
	log.Warn("bridge transport closed", "err", err)

	s.mu.Lock()
	s.reg.markAllStale()
	s.pendingCreates = nil
	for _, t := range s.tabs {
		if t.kind() != schema.TabTerminal {
			continue
		}
		if sessionID := t.session(); sessionID != "" {
			t.lastSession = sessionID
			t.state = tabStale
		}
		t.pendingSpawn = false
	}
	s.mu.Unlock()

	if s.sink != nil {
		message := "connection to session host lost"
		if err != nil {
			message = err.Error()
		}
		s.sink.OnError(schema.ErrorEvent{Code: schema.ErrorCodeConnection, Message: message})
	}
}

func (s *service) TransportConnectFailed(ctx context.Context, err error) {
	logx.Ctx(ctx).Warn("bridge transport connect failed", "err", err)
	if s.sink != nil {
		message := "session host unreachable"
		if err != nil {
			message = err.Error()
		}
		s.sink.OnError(schema.ErrorEvent{Code: schema.ErrorCodeConnection, Message: message})
	}
}

// HandleHostMessage routes one decoded host frame. Unknown concrete types are
// rejected; stray frames for sessions the bridge no longer tracks are dropped
// without error.
func (s *service) HandleHostMessage(ctx context.Context, msg schema.HostMessage) error {
	switch m := msg.(type) {
	case schema.HelloMessage:
		s.handleHello(ctx, m)
	case schema.CreatedMessage:
		s.handleCreated(ctx, m)
	case schema.AttachedMessage:
		s.handleAttached(ctx, m)
	case schema.OutputMessage:
		s.handleOutput(ctx, m)
	case schema.ExitMessage:
		s.handleExit(ctx, m)
	case schema.ClosedMessage:
		s.handleClosed(ctx, m)
	case schema.ListedMessage:
		s.handleListed(ctx, m)
	case schema.ErrorMessage:
		s.handleError(ctx, m)
	default:
		return fmt.Errorf("%w: %T", schema.ErrUnknownMessage, msg)
	}
	return nil
}

func (s *service) handleHello(ctx context.Context, msg schema.HelloMessage) {
	log := logx.Ctx(ctx)
	if msg.Version != s.cfg.ProtocolVersion {
		log.Warn("bridge protocol version mismatch", "host", msg.Version, "bridge", s.cfg.ProtocolVersion)
		if s.sink != nil {
			s.sink.OnError(schema.ErrorEvent{
				Code:    schema.ErrorCodeHost,
				Message: fmt.Sprintf("session host speaks protocol %d, expected %d", msg.Version, s.cfg.ProtocolVersion),
			})
		}
		return
	}
	log.Debug("bridge host hello", "version", msg.Version)
}

func (s *service) handleCreated(ctx context.Context, msg schema.CreatedMessage) {
	log := logx.WithSession(logx.WithWorkspace(ctx, msg.Workspace), msg.SessionID)

	s.mu.Lock()
	s.removePendingCreateLocked(msg.Workspace)
	t := s.spawnTargetLocked(msg.Workspace)
	if t == nil {
		// Nothing waiting for this session; track it so a later attach works.
		s.reg.create(msg.SessionID, msg.Workspace, msg.Cwd, msg.Shell, "")
		s.mu.Unlock()
		log.Info("bridge session created without waiting tab")
		return
	}
	s.reg.create(msg.SessionID, msg.Workspace, msg.Cwd, msg.Shell, t.ID)
	t.bindSession(msg.SessionID)
	t.state = tabReady
	t.pendingSpawn = false
	t.lastSession = ""
	var after func()
	if s.isActiveLocked(t) {
		after = s.activateLocked(t)
	}
	event := schema.ReadyEvent{TabID: t.ID, SessionID: msg.SessionID, Workspace: msg.Workspace}
	s.mu.Unlock()

	if after != nil {
		after()
	}
	if s.sink != nil {
		s.sink.OnReady(event)
	}
	log.Info("bridge session bound", "tab", event.TabID)
}

// spawnTargetLocked picks the tab a created session belongs to, preferring a
// tab with an outstanding spawn in the workspace.
func (s *service) spawnTargetLocked(key schema.WorkspaceKey) *tab {
	ws := s.workspaces[key]
	if ws == nil {
		return nil
	}
	var fallback *tab
	for _, tabID := range ws.order {
		t := s.tabs[tabID]
		if t == nil || t.kind() != schema.TabTerminal {
			continue
		}
		if t.pendingSpawn {
			return t
		}
		if fallback == nil && t.session() == "" && t.state != tabStale {
			fallback = t
		}
	}
	return fallback
}

func (s *service) handleAttached(ctx context.Context, msg schema.AttachedMessage) {
	log := logx.WithSession(logx.WithWorkspace(ctx, msg.Workspace), msg.SessionID)

	s.mu.Lock()
	sess := s.reg.get(msg.SessionID)
	if sess == nil {
		owner := schema.TabID("")
		for _, t := range s.tabs {
			if t.session() == msg.SessionID {
				owner = t.ID
				break
			}
		}
		sess = s.reg.create(msg.SessionID, msg.Workspace, msg.Cwd, msg.Shell, owner)
	}
	sess.stale = false
	var surface Surface
	var scrollback []byte
	if sess.buffer.Len() == 0 && len(msg.Scrollback) > 0 {
		// First sight of this session's history; adopt the host snapshot.
		sess.buffer.Append(msg.Scrollback)
		if t := s.tabs[sess.owner]; t != nil && s.isActiveLocked(t) {
			surface = t.surface
			scrollback = msg.Scrollback
		}
	}
	s.mu.Unlock()

	if surface != nil {
		surface.Write(scrollback)
	}
	log.Debug("bridge attach confirmed", "scrollback_bytes", len(msg.Scrollback))
}

func (s *service) handleOutput(ctx context.Context, msg schema.OutputMessage) {
	s.mu.Lock()
	if !s.reg.append(msg.SessionID, msg.Data) {
		s.mu.Unlock()
		return
	}
	var surface Surface
	if t, sess := s.activeSessionLocked(); sess != nil && sess.id == msg.SessionID {
		surface = t.surface
	}
	s.mu.Unlock()

	if surface == nil {
		return
	}
	surface.Write(msg.Data)
	s.transport.Send(schema.OutputAckMessage{SessionID: msg.SessionID, Bytes: int64(len(msg.Data))})
}

func (s *service) handleExit(ctx context.Context, msg schema.ExitMessage) {
	log := logx.WithSession(logx.Ctx(ctx), msg.SessionID)

	s.mu.Lock()
	sess := s.reg.get(msg.SessionID)
	if sess == nil {
		s.mu.Unlock()
		log.Debug("bridge exit for unknown session", "code", msg.Code)
		return
	}
	t := s.tabs[sess.owner]
	var surface Surface
	var event *schema.ClosedEvent
	if t != nil && t.session() == msg.SessionID {
		surface = t.surface
		event = &schema.ClosedEvent{TabID: t.ID, SessionID: msg.SessionID, Code: msg.Code}
		t.variant = terminalVariant{}
		t.state = tabIdle
		t.lastSession = ""
		t.pendingSpawn = false
	}
	s.reg.remove(msg.SessionID)
	s.mu.Unlock()

	if surface != nil {
		surface.Write([]byte(fmt.Sprintf("\r\n[process exited with code %d]\r\n", msg.Code)))
	}
	if event != nil && s.sink != nil {
		s.sink.OnClosed(*event)
	}
	log.Info("bridge session exited", "code", msg.Code)
}

func (s *service) handleClosed(ctx context.Context, msg schema.ClosedMessage) {
	s.mu.Lock()
	sess := s.reg.get(msg.SessionID)
	if sess != nil {
		if t := s.tabs[sess.owner]; t != nil && t.session() == msg.SessionID {
			t.variant = terminalVariant{}
			t.state = tabIdle
			t.lastSession = ""
		}
		s.reg.remove(msg.SessionID)
	}
	s.mu.Unlock()
	logx.WithSession(logx.Ctx(ctx), msg.SessionID).Debug("bridge close confirmed")
}

// handleListed reconciles stale tabs against the host's live session set:
// survivors re-attach with a full replay, the rest surface a respawn error.
func (s *service) handleListed(ctx context.Context, msg schema.ListedMessage) {
	log := logx.Ctx(ctx)
	running := make(map[schema.SessionID]schema.TerminalInfo, len(msg.Items))
	for _, item := range msg.Items {
		if item.Status == schema.SessionRunning {
			running[item.SessionID] = item
		}
	}

	s.mu.Lock()
	var attaches []schema.BridgeMessage
	var repaints []func()
	var errorEvents []schema.ErrorEvent
	for _, item := range msg.Items {
		if item.Status != schema.SessionRunning {
			continue
		}
		if s.reg.get(item.SessionID) == nil {
			s.reg.create(item.SessionID, item.Workspace, item.Cwd, item.Shell, "")
		}
	}
	for _, t := range s.tabs {
		if t.state != tabStale || t.lastSession == "" {
			continue
		}
		sessionID := t.lastSession
		if _, ok := running[sessionID]; !ok {
			s.reg.remove(sessionID)
			t.variant = terminalVariant{}
			t.state = tabIdle
			t.lastSession = ""
			errorEvents = append(errorEvents, schema.ErrorEvent{
				TabID:   t.ID,
				Code:    schema.ErrorCodeNeedsRespawn,
				Message: "session is gone, spawn a new terminal",
			})
			continue
		}
		sess := s.reg.get(sessionID)
		sess.stale = false
		sess.owner = t.ID
		t.bindSession(sessionID)
		t.state = tabReady
		t.lastSession = ""
		attaches = append(attaches, schema.AttachMessage{SessionID: sessionID})
		if s.isActiveLocked(t) && t.surface != nil {
			surface := t.surface
			replay := sess.buffer.Bytes()
			repaints = append(repaints, func() {
				surface.ClearCache()
				if len(replay) > 0 {
					surface.Write(replay)
				}
			})
		}
	}
	s.mu.Unlock()

	for _, attach := range attaches {
		s.transport.Send(attach)
	}
	for _, repaint := range repaints {
		repaint()
	}
	if s.sink != nil {
		for _, event := range errorEvents {
			s.sink.OnError(event)
		}
	}
	log.Info("bridge session list reconciled", "running", len(running), "reattached", len(attaches), "lost", len(errorEvents))
}

func (s *service) handleError(ctx context.Context, msg schema.ErrorMessage) {
	log := logx.WithSession(logx.Ctx(ctx), msg.SessionID)
	log.Warn("bridge host error", "code", msg.Code, "message", msg.Message)

	code := schema.ErrorCodeHost
	var tabID schema.TabID

	s.mu.Lock()
	if msg.Code == "spawn_failed" {
		code = schema.ErrorCodeSpawn
		// The host names no workspace, so the failure maps to the oldest
		// create still awaiting an answer.
		if key, ok := s.popPendingCreateLocked(); ok {
			if t := s.pendingSpawnTabLocked(key); t != nil {
				t.pendingSpawn = false
				t.state = tabIdle
				tabID = t.ID
			}
		}
	} else if msg.SessionID != "" {
		if sess := s.reg.get(msg.SessionID); sess != nil {
			tabID = sess.owner
		}
	}
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.OnError(schema.ErrorEvent{TabID: tabID, Code: code, Message: msg.Message})
	}
}

// popPendingCreateLocked dequeues the workspace of the oldest create the host
// has not answered yet.
func (s *service) popPendingCreateLocked() (schema.WorkspaceKey, bool) {
	if len(s.pendingCreates) == 0 {
		return "", false
	}
	key := s.pendingCreates[0]
	s.pendingCreates = s.pendingCreates[1:]
	return key, true
}

// removePendingCreateLocked drops the oldest outstanding create for key, if
// one is tracked.
func (s *service) removePendingCreateLocked(key schema.WorkspaceKey) {
	for i, pending := range s.pendingCreates {
		if pending == key {
			s.pendingCreates = append(s.pendingCreates[:i], s.pendingCreates[i+1:]...)
			return
		}
	}
}

// pendingSpawnTabLocked returns the workspace's tab with an outstanding
// spawn, or nil.
func (s *service) pendingSpawnTabLocked(key schema.WorkspaceKey) *tab {
	ws := s.workspaces[key]
	if ws == nil {
		return nil
	}
	for _, tabID := range ws.order {
		if t := s.tabs[tabID]; t != nil && t.pendingSpawn {
			return t
		}
	}
	return nil
}
