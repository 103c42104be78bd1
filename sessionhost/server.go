// Package sessionhost runs the PTY-owning side of the bridge protocol: it
// spawns shells, retains scrollback across bridge disconnects, and serves
// the websocket endpoint the bridge dials.
package sessionhost

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

const (
	clientSendDepth     = 256
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
	maxFrameSize        = 1 << 20
)

// ServerConfig tunes the websocket endpoint.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9777".
	Addr string
	// Path is the websocket route. Defaults to "/bridge".
	Path string

	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Path == "" {
		c.Path = "/bridge"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	return c
}

// Server accepts bridge connections and dispatches protocol frames onto a
// Registry.
type Server struct {
	cfg      ServerConfig
	reg      *Registry
	logger   pslog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	httpSrv *http.Server
}

// NewServer wires a Server to a Registry. The Registry's exit callback is
// claimed by the server so exits reach every connected bridge.
func NewServer(cfg ServerConfig, reg *Registry, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &Server{
		cfg:     cfg.withDefaults(),
		reg:     reg,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	reg.SetOnExit(s.broadcastExit)
	return s
}

// Handler exposes the websocket route for embedding in an existing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleBridge)
	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.logger.Info("session host listening", "addr", s.cfg.Addr, "path", s.cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is ListenAndServe on a pre-bound listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains clients, stops the listener, and tears all sessions down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.teardown()
	}
	s.reg.CloseAll()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, clientSendDepth),
		subs:   make(map[schema.SessionID]subscription),
		logger: s.logger,
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("bridge connected", "remote", conn.RemoteAddr().String())

	go c.writePump()
	c.enqueue(schema.HelloMessage{Version: schema.ProtocolVersion})
	go c.readPump()
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) broadcastExit(id schema.SessionID, code int) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.enqueue(schema.ExitMessage{SessionID: id, Code: code})
	}
}

// client is one connected bridge. All writes to the connection go through
// the send channel so a single goroutine owns the write side.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	logger pslog.Logger

	mu       sync.Mutex
	subs     map[schema.SessionID]subscription
	sendDown bool
	closed   sync.Once
}

// subscription pins the terminal so detach can always unsubscribe through
// it, even after the registry has dropped the session.
type subscription struct {
	t   *terminal
	sub *subscriber
}

func (c *client) enqueue(msg schema.HostMessage) {
	frame, err := schema.EncodeHostMessage(msg)
	if err != nil {
		c.logger.Error("encode host message", "error", err)
		return
	}
	// The non-blocking enqueue runs under the mutex so teardown, which
	// closes the channel under the same mutex, cannot race it.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendDown {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("bridge send buffer full, frame dropped")
	}
}

func (c *client) teardown() {
	c.closed.Do(func() {
		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[schema.SessionID]subscription)
		c.sendDown = true
		close(c.send)
		c.mu.Unlock()
		for _, entry := range subs {
			entry.t.unsubscribe(entry.sub)
		}
		c.server.dropClient(c)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongTimeout))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("bridge disconnected", "error", err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongTimeout))
		msg, err := schema.DecodeBridgeMessage(frame)
		if err != nil {
			c.logger.Warn("bad bridge frame", "error", err)
			c.enqueue(schema.ErrorMessage{Code: "bad_frame", Message: err.Error()})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *client) dispatch(msg schema.BridgeMessage) {
	switch m := msg.(type) {
	case schema.CreateMessage:
		c.handleCreate(m)
	case schema.AttachMessage:
		c.handleAttach(m)
	case schema.InputMessage:
		if err := c.server.reg.WriteInput(m.SessionID, m.Data); err != nil {
			c.enqueue(schema.ErrorMessage{Code: "input_failed", Message: err.Error(), SessionID: m.SessionID})
		}
	case schema.ResizeMessage:
		if err := c.server.reg.Resize(m.SessionID, m.Cols, m.Rows); err != nil {
			c.enqueue(schema.ErrorMessage{Code: "resize_failed", Message: err.Error(), SessionID: m.SessionID})
		}
	case schema.CloseMessage:
		c.detach(m.SessionID)
		c.server.reg.Close(m.SessionID)
		c.enqueue(schema.ClosedMessage{SessionID: m.SessionID})
	case schema.ListMessage:
		c.enqueue(schema.ListedMessage{Items: c.server.reg.List()})
	case schema.OutputAckMessage:
		if t := c.server.reg.Get(m.SessionID); t != nil {
			t.ack(m.Bytes)
		}
	default:
		c.enqueue(schema.ErrorMessage{Code: "unknown_message", Message: "unsupported frame type"})
	}
}

func (c *client) handleCreate(m schema.CreateMessage) {
	t, err := c.server.reg.Spawn(m.Workspace, m.Cwd)
	if err != nil {
		c.logger.Error("spawn failed", "workspace", m.Workspace, "error", err)
		c.enqueue(schema.ErrorMessage{Code: "spawn_failed", Message: err.Error()})
		return
	}
	info := t.info()
	c.attachTo(t)
	c.enqueue(schema.CreatedMessage{
		SessionID: info.SessionID,
		Workspace: info.Workspace,
		Cwd:       info.Cwd,
		Shell:     info.Shell,
	})
}

func (c *client) handleAttach(m schema.AttachMessage) {
	t := c.server.reg.Resolve(m.SessionID)
	if t == nil {
		c.enqueue(schema.ErrorMessage{Code: "session_not_found", Message: "no such session", SessionID: m.SessionID})
		return
	}
	c.attachTo(t)
	info := t.info()
	c.enqueue(schema.AttachedMessage{
		SessionID:  info.SessionID,
		Workspace:  info.Workspace,
		Cwd:        info.Cwd,
		Shell:      info.Shell,
		Scrollback: t.snapshotScrollback(),
	})
}

// attachTo subscribes this client to a terminal's output, replacing any
// prior subscription to the same session.
func (c *client) attachTo(t *terminal) {
	c.detach(t.id)
	sub := t.subscribe()
	c.mu.Lock()
	c.subs[t.id] = subscription{t: t, sub: sub}
	c.mu.Unlock()
	go func() {
		for chunk := range sub.ch {
			c.enqueue(schema.OutputMessage{SessionID: t.id, Data: chunk})
		}
	}()
}

func (c *client) detach(id schema.SessionID) {
	c.mu.Lock()
	entry, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		entry.t.unsubscribe(entry.sub)
	}
}
