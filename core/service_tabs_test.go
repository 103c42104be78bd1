package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/termbridge/schema"
)

func TestOpenTabRejectsBadRequests(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	ctx := context.Background()
	cases := []schema.OpenTabRequest{
		{Kind: schema.TabTerminal},
		{Workspace: "proj/main"},
		{Workspace: "proj/main", Kind: schema.TabEditor},
		{Workspace: "proj/main", Kind: schema.TabDiff},
		{Workspace: "proj/main", Kind: "bogus"},
	}
	for _, req := range cases {
		if _, err := f.svc.OpenTab(ctx, req); !errors.Is(err, schema.ErrInvalidRequest) {
			t.Fatalf("OpenTab(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestOpenTabActivatesAndFocuses(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	tabID, surface := f.openTerminal(t, "proj/main")
	if surface == nil {
		t.Fatalf("no surface created for terminal tab")
	}
	if surface.focuses != 1 {
		t.Fatalf("focuses = %d, want 1", surface.focuses)
	}
	resp, err := f.svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if err != nil {
		t.Fatalf("ListTabs: %v", err)
	}
	if len(resp.Workspaces) != 1 || resp.Workspaces[0].ActiveTab != tabID {
		t.Fatalf("unexpected listing %+v", resp)
	}
}

func TestCloseTabActivatesPrevious(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	first, _ := f.openTerminal(t, "proj/main")
	second, _ := f.openTerminal(t, "proj/main")
	if _, err := f.svc.CloseTab(context.Background(), schema.CloseTabRequest{TabID: second}); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	resp, err := f.svc.ListTabs(context.Background(), schema.ListTabsRequest{})
	if err != nil {
		t.Fatalf("ListTabs: %v", err)
	}
	if resp.Workspaces[0].ActiveTab != first {
		t.Fatalf("active tab = %s, want %s", resp.Workspaces[0].ActiveTab, first)
	}
}

func TestCloseTabWithSessionTearsDown(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	tabID, _ := f.openTerminal(t, "proj/main")
	f.spawnReady(t, tabID, "sess-1")
	if _, err := f.svc.CloseTab(context.Background(), schema.CloseTabRequest{TabID: tabID}); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	var closed bool
	for _, msg := range f.transport.sentMessages() {
		if m, ok := msg.(schema.CloseMessage); ok && m.SessionID == "sess-1" {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("expected close frame for sess-1, sent %+v", f.transport.sentMessages())
	}
	resp, err := f.svc.Sessions(context.Background(), schema.SessionsRequest{})
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(resp.Sessions) != 0 {
		t.Fatalf("registry not empty after close: %+v", resp.Sessions)
	}
}

func TestCloseTabUnknown(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	if _, err := f.svc.CloseTab(context.Background(), schema.CloseTabRequest{TabID: "missing"}); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("err = %v, want ErrTabNotFound", err)
	}
}

func TestAccelFollowsActiveTab(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	first, s1 := f.openTerminal(t, "proj/main")
	second, s2 := f.openTerminal(t, "proj/main")
	f.surfaces.events = nil

	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: first}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if !s1.held || s2.held {
		t.Fatalf("accel not exclusive to first tab: s1=%v s2=%v", s1.held, s2.held)
	}
	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: second}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if s1.held || !s2.held {
		t.Fatalf("accel not handed over: s1=%v s2=%v", s1.held, s2.held)
	}
	// The release must precede the acquire so two tabs never hold at once.
	var sawRelease bool
	for _, event := range f.surfaces.events {
		if event == "release:"+string(first) {
			sawRelease = true
		}
		if event == "acquire:"+string(second) && !sawRelease {
			t.Fatalf("acquired before release: %v", f.surfaces.events)
		}
	}
}

func TestAccelFailureDowngradesForRun(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	first, s1 := f.openTerminal(t, "proj/main")
	second, s2 := f.openTerminal(t, "proj/main")
	s1.acquireErr = errors.New("context limit reached")

	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: first}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if s1.held {
		t.Fatalf("failed acquisition should not hold")
	}
	// After the downgrade nothing acquires again this run.
	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: second}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if s2.held {
		t.Fatalf("downgrade should prevent further acquisition attempts")
	}
}

func TestAccelLostReleasesWithoutDowngrade(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	first, s1 := f.openTerminal(t, "proj/main")
	if !s1.held {
		t.Fatalf("active terminal tab should hold accel")
	}
	s1.lost()
	s1.held = false
	if f.svc.accel.downgraded {
		t.Fatalf("external loss must not downgrade")
	}
	// Reactivation may acquire a fresh context.
	second, _ := f.openTerminal(t, "proj/main")
	_ = second
	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: first}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if !s1.held {
		t.Fatalf("expected fresh acquisition after loss")
	}
}

func TestAccelRevokedDuringAcquisition(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	first, s1 := f.openTerminal(t, "proj/main")
	_, s2 := f.openTerminal(t, "proj/main")
	if !s2.held {
		t.Fatalf("second tab should hold accel")
	}

	// The surface fires its loss callback from inside AcquireAccel; the
	// service must take the reentrant call and record no hold.
	s1.revokeOnAcquire = true
	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: first}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if f.svc.tabs[first].Snapshot(true).HasAccel {
		t.Fatalf("revoked acquisition should not hold")
	}
	if f.svc.accel.downgraded {
		t.Fatalf("revocation must not downgrade")
	}

	// A later activation may acquire a fresh context.
	s1.revokeOnAcquire = false
	if _, err := f.svc.ActivateTab(context.Background(), schema.ActivateTabRequest{TabID: first}); err != nil {
		t.Fatalf("ActivateTab: %v", err)
	}
	if !s1.held {
		t.Fatalf("expected fresh acquisition after revocation")
	}
}

func TestListTabsDiffModeNarrows(t *testing.T) {
	f := newBridgeFixture(t, schema.BridgeConfig{})
	ctx := context.Background()
	if _, err := f.svc.OpenTab(ctx, schema.OpenTabRequest{Workspace: "proj/main", Kind: schema.TabEditor, Path: "main.go"}); err != nil {
		t.Fatalf("OpenTab editor: %v", err)
	}
	diffResp, err := f.svc.OpenTab(ctx, schema.OpenTabRequest{Workspace: "proj/main", Kind: schema.TabDiff, Path: "main.go"})
	if err != nil {
		t.Fatalf("OpenTab diff: %v", err)
	}
	if _, err := f.svc.SetMode(ctx, schema.SetModeRequest{Mode: schema.ModeDiff}); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	resp, err := f.svc.ListTabs(ctx, schema.ListTabsRequest{})
	if err != nil {
		t.Fatalf("ListTabs: %v", err)
	}
	if len(resp.Workspaces[0].Tabs) != 1 || resp.Workspaces[0].Tabs[0].ID != diffResp.Tab.ID {
		t.Fatalf("diff mode should list diff tabs only, got %+v", resp.Workspaces[0].Tabs)
	}
	if resp.Mode != schema.ModeDiff {
		t.Fatalf("mode = %s, want diff", resp.Mode)
	}
}
