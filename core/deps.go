package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

// Transport is the duplex link to the session host. Connect is asynchronous;
// Send silently drops while disconnected (queuing is the protocol handler's
// job, not the transport's); Close is idempotent.
type Transport interface {
	Connect(ctx context.Context)
	Connected() bool
	Send(msg schema.BridgeMessage)
	Close()
}

// ServiceDeps captures the collaborators the bridge core is built around.
type ServiceDeps struct {
	Transport Transport
	Surfaces  SurfaceProvider
	Sink      EventSink
	Logger    pslog.Logger
}
