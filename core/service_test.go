package core

import (
	"context"
	"sync"
	"testing"

	"pkt.systems/termbridge/schema"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	connects  int
	sent      []schema.BridgeMessage
}

func (f *fakeTransport) Connect(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(msg schema.BridgeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.sent = append(f.sent, msg)
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeTransport) sentMessages() []schema.BridgeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.BridgeMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type fakeSurface struct {
	id         schema.TabID
	provider   *fakeProvider
	writes     [][]byte
	fits       int
	focuses    int
	clears     int
	acquireErr error
	// revokeOnAcquire fires the loss callback from inside AcquireAccel,
	// mimicking a context revoked the instant it is granted.
	revokeOnAcquire bool
	held            bool
	lost            func()
}

func (f *fakeSurface) Write(data []byte) {
	chunk := make([]byte, len(data))
	copy(chunk, data)
	f.writes = append(f.writes, chunk)
}

func (f *fakeSurface) Fit()   { f.fits++ }
func (f *fakeSurface) Focus() { f.focuses++ }

func (f *fakeSurface) ClearCache() { f.clears++ }

func (f *fakeSurface) AcquireAccel() error {
	if f.acquireErr != nil {
		f.provider.events = append(f.provider.events, "fail:"+string(f.id))
		return f.acquireErr
	}
	if f.revokeOnAcquire && f.lost != nil {
		f.lost()
		f.provider.events = append(f.provider.events, "revoke:"+string(f.id))
		return nil
	}
	f.held = true
	f.provider.events = append(f.provider.events, "acquire:"+string(f.id))
	return nil
}

func (f *fakeSurface) ReleaseAccel() {
	f.held = false
	f.provider.events = append(f.provider.events, "release:"+string(f.id))
}

func (f *fakeSurface) OnAccelLost(fn func()) { f.lost = fn }

func (f *fakeSurface) written() []byte {
	var out []byte
	for _, chunk := range f.writes {
		out = append(out, chunk...)
	}
	return out
}

type fakeProvider struct {
	surfaces map[schema.TabID]*fakeSurface
	events   []string
}

func (f *fakeProvider) Create(tabID schema.TabID) Surface {
	if f.surfaces == nil {
		f.surfaces = make(map[schema.TabID]*fakeSurface)
	}
	surface := &fakeSurface{id: tabID, provider: f}
	f.surfaces[tabID] = surface
	return surface
}

type fakeSink struct {
	ready  []schema.ReadyEvent
	errors []schema.ErrorEvent
	closed []schema.ClosedEvent
	modes  []schema.ModeEvent
}

func (f *fakeSink) OnReady(event schema.ReadyEvent)   { f.ready = append(f.ready, event) }
func (f *fakeSink) OnError(event schema.ErrorEvent)   { f.errors = append(f.errors, event) }
func (f *fakeSink) OnClosed(event schema.ClosedEvent) { f.closed = append(f.closed, event) }
func (f *fakeSink) OnMode(event schema.ModeEvent)     { f.modes = append(f.modes, event) }

type bridgeFixture struct {
	svc       *service
	transport *fakeTransport
	surfaces  *fakeProvider
	sink      *fakeSink
}

func newBridgeFixture(t *testing.T, cfg schema.BridgeConfig) *bridgeFixture {
	t.Helper()
	transport := &fakeTransport{connected: true}
	surfaces := &fakeProvider{}
	sink := &fakeSink{}
	svc, err := NewService(cfg, ServiceDeps{
		Transport: transport,
		Surfaces:  surfaces,
		Sink:      sink,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &bridgeFixture{
		svc:       svc.(*service),
		transport: transport,
		surfaces:  surfaces,
		sink:      sink,
	}
}

// openTerminal opens a terminal tab and returns its id with its surface.
func (f *bridgeFixture) openTerminal(t *testing.T, workspace schema.WorkspaceKey) (schema.TabID, *fakeSurface) {
	t.Helper()
	resp, err := f.svc.OpenTab(context.Background(), schema.OpenTabRequest{
		Workspace: workspace,
		Kind:      schema.TabTerminal,
	})
	if err != nil {
		t.Fatalf("OpenTab: %v", err)
	}
	return resp.Tab.ID, f.surfaces.surfaces[resp.Tab.ID]
}

// spawnReady runs a spawn through host confirmation and returns the session id.
func (f *bridgeFixture) spawnReady(t *testing.T, tabID schema.TabID, sessionID schema.SessionID) {
	t.Helper()
	ctx := context.Background()
	resp, err := f.svc.Spawn(ctx, schema.SpawnRequest{TabID: tabID})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !resp.Pending {
		t.Fatalf("expected pending spawn, got %+v", resp)
	}
	workspace := f.svc.tabs[tabID].Workspace
	if err := f.svc.HandleHostMessage(ctx, schema.CreatedMessage{
		SessionID: sessionID,
		Workspace: workspace,
		Cwd:       "/work",
		Shell:     "/bin/bash",
	}); err != nil {
		t.Fatalf("created: %v", err)
	}
}
