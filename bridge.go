// Package termbridge composes the bridge side of the terminal protocol:
// the core session/tab service, the websocket transport to the session
// host, and an event bus for UI consumers.
package termbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/core"
	"pkt.systems/termbridge/internal/eventbus"
	"pkt.systems/termbridge/schema"
	"pkt.systems/termbridge/transport"
)

// Bridge is a running bridge: a service bound to a host connection.
type Bridge interface {
	// Service exposes the tab and session operations.
	Service() core.Service
	// Events returns the bus UI consumers subscribe to.
	Events() *eventbus.Bus
	// Start dials the session host. Reconnection is the caller's loop:
	// a connection error surfaces as an event and Start may be called
	// again.
	Start(ctx context.Context) error
	// Stop closes the host connection.
	Stop(ctx context.Context) error
}

// Config configures the bridge compositor.
type Config struct {
	// HostURL is the session host websocket endpoint.
	HostURL string
	// Service tunes buffering and layout behavior.
	Service schema.BridgeConfig
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration
}

// Deps captures dependencies required to build a bridge.
type Deps struct {
	// Surfaces creates render surfaces for terminal tabs.
	Surfaces core.SurfaceProvider
	// Sink receives events in addition to the internal bus. Optional.
	Sink core.EventSink
	// Logger defaults to the ambient context logger when nil.
	Logger pslog.Logger
}

// New constructs a Bridge wired end to end.
func New(cfg Config, deps Deps) (Bridge, error) {
	if cfg.HostURL == "" {
		return nil, errors.New("host url is required")
	}
	if deps.Surfaces == nil {
		return nil, errors.New("surface provider dependency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	bus := eventbus.New(logger)
	var sink core.EventSink = bus
	if deps.Sink != nil {
		sink = sinkFanout{sinks: []core.EventSink{bus, deps.Sink}}
	}

	// The transport needs the service as its event target and the service
	// needs the transport; the relay breaks the cycle.
	relay := &eventRelay{}
	adapter, err := transport.New(transport.Config{
		URL:         cfg.HostURL,
		DialTimeout: cfg.DialTimeout,
	}, relay, logger)
	if err != nil {
		return nil, err
	}

	svc, err := core.NewService(cfg.Service, core.ServiceDeps{
		Transport: adapter,
		Surfaces:  deps.Surfaces,
		Sink:      sink,
		Logger:    logger,
	})
	if err != nil {
		adapter.Close()
		return nil, err
	}
	relay.bind(svc)

	return &bridge{svc: svc, adapter: adapter, bus: bus, logger: logger}, nil
}

type bridge struct {
	svc     core.Service
	adapter *transport.Adapter
	bus     *eventbus.Bus
	logger  pslog.Logger
}

func (b *bridge) Service() core.Service { return b.svc }

func (b *bridge) Events() *eventbus.Bus { return b.bus }

func (b *bridge) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.logger.Info("bridge start")
	b.adapter.Connect(ctx)
	return nil
}

func (b *bridge) Stop(ctx context.Context) error {
	b.logger.Info("bridge stop")
	b.adapter.Close()
	return nil
}

// eventRelay forwards transport lifecycle callbacks to the service once
// the service exists. Callbacks before bind are dropped; Connect is not
// called until after construction completes.
type eventRelay struct {
	mu  sync.Mutex
	svc core.TransportEvents
}

func (r *eventRelay) bind(svc core.TransportEvents) {
	r.mu.Lock()
	r.svc = svc
	r.mu.Unlock()
}

func (r *eventRelay) target() core.TransportEvents {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.svc
}

func (r *eventRelay) TransportOpened(ctx context.Context) {
	if svc := r.target(); svc != nil {
		svc.TransportOpened(ctx)
	}
}

func (r *eventRelay) TransportClosed(ctx context.Context, err error) {
	if svc := r.target(); svc != nil {
		svc.TransportClosed(ctx, err)
	}
}

func (r *eventRelay) TransportConnectFailed(ctx context.Context, err error) {
	if svc := r.target(); svc != nil {
		svc.TransportConnectFailed(ctx, err)
	}
}

func (r *eventRelay) HandleHostMessage(ctx context.Context, msg schema.HostMessage) error {
	svc := r.target()
	if svc == nil {
		return nil
	}
	return svc.HandleHostMessage(ctx, msg)
}
