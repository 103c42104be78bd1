// Package transport carries bridge frames over a websocket to the session
// host. The adapter owns reconnect-free connection lifecycle: it dials when
// asked, reports open/close/fail to the bridge core, and drops sends while
// disconnected. Resilience policy (what to defer, what to replay) lives in
// the core, not here.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/termbridge/core"
	"pkt.systems/termbridge/schema"
)

const sendDepth = 256

// Config configures the websocket adapter.
type Config struct {
	// URL is the session host endpoint, e.g. ws://127.0.0.1:7171/bridge.
	URL string
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// PingInterval is how often keepalive pings go out.
	PingInterval time.Duration
	// PongTimeout is how long to wait for traffic before declaring the
	// connection dead.
	PongTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	return c
}

// Adapter is a websocket client implementing core.Transport.
type Adapter struct {
	cfg    Config
	events core.TransportEvents
	logger pslog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	send       chan []byte
	connecting bool
	closed     bool
}

// New constructs an Adapter. Events must be set before Connect is called.
func New(cfg Config, events core.TransportEvents, logger pslog.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("missing session host url")
	}
	if events == nil {
		return nil, errors.New("missing transport events")
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Adapter{
		cfg:    cfg.withDefaults(),
		events: events,
		logger: logger,
	}, nil
}

// Connect dials the session host asynchronously. A connect already in flight
// or an open connection makes this a no-op.
func (a *Adapter) Connect(ctx context.Context) {
	a.mu.Lock()
	if a.closed || a.connecting || a.conn != nil {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	a.mu.Unlock()

	go a.dial(ctx)
}

func (a *Adapter) dial(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, a.cfg.URL, nil)

	a.mu.Lock()
	a.connecting = false
	if err != nil {
		a.mu.Unlock()
		a.logger.Warn("transport dial failed", "url", a.cfg.URL, "err", err)
		a.events.TransportConnectFailed(ctx, err)
		return
	}
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	send := make(chan []byte, sendDepth)
	a.conn = conn
	a.send = send
	a.mu.Unlock()

	a.logger.Info("transport connected", "url", a.cfg.URL)
	go a.writePump(conn, send)
	go a.readPump(ctx, conn)
	a.events.TransportOpened(ctx)
}

// Connected reports whether a connection is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Send queues one frame. Frames are dropped while disconnected or when the
// send buffer is full; the core re-requests state on reconnect, so drops are
// safe.
func (a *Adapter) Send(msg schema.BridgeMessage) {
	data, err := schema.EncodeBridgeMessage(msg)
	if err != nil {
		a.logger.Error("transport encode failed", "err", err)
		return
	}
	// The non-blocking enqueue happens under the mutex so that dropConn and
	// Close, which close the channel under the same mutex, cannot race it.
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		a.logger.Trace("transport send dropped while disconnected")
		return
	}
	select {
	case a.send <- data:
	default:
		a.logger.Warn("transport send buffer full, dropping frame")
	}
}

// Close shuts the adapter down. Idempotent; no callbacks fire for a
// deliberate close.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	conn := a.conn
	send := a.send
	a.conn = nil
	a.send = nil
	a.mu.Unlock()

	if send != nil {
		close(send)
	}
	if conn != nil {
		conn.Close()
	}
}

// dropConn clears the connection if it is still the current one. Reports
// whether this call performed the teardown.
func (a *Adapter) dropConn(conn *websocket.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != conn {
		return false
	}
	a.conn = nil
	close(a.send)
	a.send = nil
	return !a.closed
}

func (a *Adapter) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case data, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				a.logger.Warn("transport write failed", "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(a.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(a.cfg.PongTimeout))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if a.dropConn(conn) {
				a.events.TransportClosed(ctx, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(a.cfg.PongTimeout))
		msg, err := schema.DecodeHostMessage(data)
		if err != nil {
			a.logger.Warn("transport frame rejected", "err", err)
			continue
		}
		if err := a.events.HandleHostMessage(ctx, msg); err != nil {
			a.logger.Warn("transport message rejected", "err", err)
		}
	}
}
