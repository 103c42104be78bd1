package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/internal/logx"
	"pkt.systems/termbridge/schema"
)

// service implements the bridge core. All state is guarded by mu; surface
// writes and transport sends collected while locked run after the unlock so
// collaborator callbacks can re-enter the service.
type service struct {
	cfg       schema.BridgeConfig
	transport Transport
	surfaces  SurfaceProvider
	sink      EventSink
	logger    pslog.Logger

	mu         sync.Mutex
	reg        *registry
	tabs       map[schema.TabID]*tab
	workspaces map[schema.WorkspaceKey]*workspaceState
	wsOrder    []schema.WorkspaceKey
	current    schema.WorkspaceKey
	mode       schema.Mode
	accel      arbiter
	deferred   deferredOps
	// pendingCreates holds, in send order, the workspace of every create the
	// host has not yet answered. Host spawn errors carry no workspace, so
	// failures are matched against the oldest outstanding create.
	pendingCreates []schema.WorkspaceKey
	refit          *time.Timer
}

var settleAfter = time.AfterFunc

type workspaceState struct {
	order  []schema.TabID
	active schema.TabID
}

// deferredOps records work accepted while the transport was down. A single
// spawn slot is enough: spawn and ensure both resolve to one tab, and a newer
// request replaces the older one, so at most one create is sent on reconnect.
type deferredOps struct {
	spawnTab schema.TabID
}

// NewService constructs the bridge core.
func NewService(cfg schema.BridgeConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeBridgeConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Transport == nil {
		return nil, errors.New("missing transport")
	}
	if deps.Surfaces == nil {
		return nil, errors.New("missing surface provider")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:        cfg,
		transport:  deps.Transport,
		surfaces:   deps.Surfaces,
		sink:       deps.Sink,
		logger:     logger,
		reg:        newRegistry(cfg.BufferMaxChunks, logger),
		tabs:       make(map[schema.TabID]*tab),
		workspaces: make(map[schema.WorkspaceKey]*workspaceState),
		mode:       schema.ModeEditor,
		accel:      arbiter{downgradeOnFailure: *cfg.AccelDowngrade, logger: logger},
	}, nil
}

func (s *service) OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error) {
	if ctx == nil {
		return schema.OpenTabResponse{}, errors.New("missing context")
	}
	if req.Workspace == "" {
		return schema.OpenTabResponse{}, schema.ErrInvalidRequest
	}
	var variant tabVariant
	switch req.Kind {
	case schema.TabTerminal:
		variant = terminalVariant{}
	case schema.TabEditor:
		if req.Path == "" {
			return schema.OpenTabResponse{}, schema.ErrInvalidRequest
		}
		variant = editorVariant{path: req.Path}
	case schema.TabDiff:
		if req.Path == "" {
			return schema.OpenTabResponse{}, schema.ErrInvalidRequest
		}
		variant = diffVariant{path: req.Path}
	default:
		return schema.OpenTabResponse{}, schema.ErrInvalidRequest
	}
	tabID := schema.TabID(newID())
	log := logx.WithWorkspace(ctx, req.Workspace)
	log.Info("bridge tab open", "tab", tabID, "kind", req.Kind)

	t := &tab{
		ID:        tabID,
		Workspace: req.Workspace,
		variant:   variant,
	}
	if req.Kind == schema.TabTerminal {
		t.surface = s.surfaces.Create(tabID)
		t.surface.OnAccelLost(func() { s.accelLost(tabID) })
	}

	s.mu.Lock()
	ws := s.workspaces[req.Workspace]
	if ws == nil {
		ws = &workspaceState{}
		s.workspaces[req.Workspace] = ws
		s.wsOrder = append(s.wsOrder, req.Workspace)
	}
	s.tabs[tabID] = t
	ws.order = append(ws.order, tabID)
	ws.active = tabID
	if s.current == "" {
		s.current = req.Workspace
	}
	after := s.activateLocked(t)
	snap := t.Snapshot(true)
	s.mu.Unlock()
	after()
	return schema.OpenTabResponse{Tab: snap}, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	if ctx == nil {
		return schema.CloseTabResponse{}, errors.New("missing context")
	}
	log := logx.WithTab(ctx, req.TabID)

	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.CloseTabResponse{}, schema.ErrTabNotFound
	}
	log.Info("bridge tab close", "workspace", t.Workspace, "session", t.session())
	var closeMsg schema.BridgeMessage
	if sessionID := t.session(); sessionID != "" {
		closeMsg = schema.CloseMessage{SessionID: sessionID}
		s.reg.remove(sessionID)
	}
	released := s.accel.release(t)
	delete(s.tabs, req.TabID)
	if s.deferred.spawnTab == req.TabID {
		s.deferred.spawnTab = ""
	}
	ws := s.workspaces[t.Workspace]
	var after func()
	if ws != nil {
		ws.order = removeTabID(ws.order, req.TabID)
		if ws.active == req.TabID {
			ws.active = ""
			if len(ws.order) > 0 {
				ws.active = ws.order[len(ws.order)-1]
				after = s.activateLocked(s.tabs[ws.active])
			}
		}
	}
	snap := t.Snapshot(false)
	s.mu.Unlock()
	if released != nil {
		released.ReleaseAccel()
	}
	if closeMsg != nil && s.transport.Connected() {
		s.transport.Send(closeMsg)
	}
	if after != nil {
		after()
	}
	return schema.CloseTabResponse{Tab: snap}, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	if ctx == nil {
		return schema.ActivateTabResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	t := s.tabs[req.TabID]
	if t == nil {
		s.mu.Unlock()
		return schema.ActivateTabResponse{}, schema.ErrTabNotFound
	}
	ws := s.workspaces[t.Workspace]
	ws.active = req.TabID
	s.current = t.Workspace
	after := s.activateLocked(t)
	snap := t.Snapshot(true)
	s.mu.Unlock()
	after()
	logx.WithTab(ctx, req.TabID).Info("bridge tab activated", "workspace", t.Workspace)
	return schema.ActivateTabResponse{Tab: snap}, nil
}

func (s *service) ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	if ctx == nil {
		return schema.ListTabsResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := schema.ListTabsResponse{Mode: s.mode}
	for _, key := range s.wsOrder {
		if req.Workspace != "" && key != req.Workspace {
			continue
		}
		ws := s.workspaces[key]
		snap := schema.WorkspaceSnapshot{Key: key, ActiveTab: ws.active}
		for _, tabID := range ws.order {
			t := s.tabs[tabID]
			if t == nil {
				continue
			}
			if s.mode == schema.ModeDiff && t.kind() != schema.TabDiff {
				continue
			}
			snap.Tabs = append(snap.Tabs, t.Snapshot(tabID == ws.active))
		}
		resp.Workspaces = append(resp.Workspaces, snap)
	}
	return resp, nil
}

// accelHandoffLocked plans the context handoff to t and returns the surface
// calls to run after the lock is released, or nil when nothing changes. The
// returned func re-locks to record the acquisition outcome, so a surface that
// fires OnAccelLost during AcquireAccel re-enters the service cleanly.
func (s *service) accelHandoffLocked(t *tab) func() {
	all := make([]*tab, 0, len(s.tabs))
	for _, other := range s.tabs {
		all = append(all, other)
	}
	releases, acquire := s.accel.activate(t, all)
	if len(releases) == 0 && acquire == nil {
		return nil
	}
	var surface Surface
	if acquire != nil {
		surface = acquire.surface
	}
	return func() {
		for _, released := range releases {
			released.ReleaseAccel()
		}
		if acquire == nil {
			return
		}
		err := surface.AcquireAccel()
		s.mu.Lock()
		s.accel.finish(acquire, err)
		s.mu.Unlock()
	}
}

// activateLocked hands the accelerated context to t and prepares the surface
// repaint. The returned func runs the surface calls and must be invoked after
// the lock is released.
func (s *service) activateLocked(t *tab) func() {
	accel := s.accelHandoffLocked(t)
	if t == nil || t.kind() != schema.TabTerminal || t.surface == nil {
		return func() {
			if accel != nil {
				accel()
			}
		}
	}
	surface := t.surface
	var replay []byte
	if sessionID := t.session(); sessionID != "" {
		if sess := s.reg.get(sessionID); sess != nil {
			replay = sess.buffer.Bytes()
		}
	}
	return func() {
		if accel != nil {
			accel()
		}
		if len(replay) > 0 {
			surface.ClearCache()
			surface.Write(replay)
		}
		surface.Focus()
	}
}

// activeSessionLocked returns the session behind the active terminal tab of
// the focused workspace, or nil.
func (s *service) activeSessionLocked() (*tab, *session) {
	ws := s.workspaces[s.current]
	if ws == nil || ws.active == "" {
		return nil, nil
	}
	t := s.tabs[ws.active]
	if t == nil || t.kind() != schema.TabTerminal || t.state != tabReady {
		return nil, nil
	}
	sessionID := t.session()
	if sessionID == "" {
		return nil, nil
	}
	return t, s.reg.get(sessionID)
}

// accelLost handles an external revocation reported by a surface.
func (s *service) accelLost(tabID schema.TabID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accel.lost(s.tabs[tabID])
}

func removeTabID(order []schema.TabID, id schema.TabID) []schema.TabID {
	out := order[:0]
	for _, candidate := range order {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
