package core

import (
	"context"

	"pkt.systems/termbridge/schema"
)

// Service is the behavioral contract for the bridge core.
type Service interface {
	OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	Spawn(ctx context.Context, req schema.SpawnRequest) (schema.SpawnResponse, error)
	Attach(ctx context.Context, req schema.AttachRequest) (schema.AttachResponse, error)
	Kill(ctx context.Context, req schema.KillRequest) (schema.KillResponse, error)
	Ensure(ctx context.Context, req schema.EnsureRequest) (schema.EnsureResponse, error)
	Sessions(ctx context.Context, req schema.SessionsRequest) (schema.SessionsResponse, error)
	WriteInput(ctx context.Context, req schema.WriteInputRequest) (schema.WriteInputResponse, error)
	Resize(ctx context.Context, req schema.ResizeRequest) (schema.ResizeResponse, error)
	SetMode(ctx context.Context, req schema.SetModeRequest) (schema.SetModeResponse, error)

	TransportEvents
}

// TransportEvents is the callback surface the transport drives. Callbacks
// run to completion in the transport's read goroutine; the service does its
// own locking.
type TransportEvents interface {
	TransportOpened(ctx context.Context)
	TransportClosed(ctx context.Context, err error)
	TransportConnectFailed(ctx context.Context, err error)
	HandleHostMessage(ctx context.Context, msg schema.HostMessage) error
}
