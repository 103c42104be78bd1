package sessionhost

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

// DefaultScrollbackBytes caps per-terminal scrollback retained for replay.
const DefaultScrollbackBytes = 256 * 1024

// DefaultHighWater pauses the PTY pump when this many output bytes are
// unacknowledged by the attached bridge.
const DefaultHighWater = 512 * 1024

const readBufSize = 8192

// startShell launches the shell on a pseudo-terminal and returns the tty, a
// wait func yielding the exit code, and an error. Replaced in tests.
var startShell = func(shell, cwd string) (io.ReadWriteCloser, func() int, error) {
	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	tty, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, err
	}
	wait := func() int {
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode()
			}
			return 1
		}
		return 0
	}
	return tty, wait, nil
}

// subscriber receives output chunks for one attached peer. Delivery is
// non-blocking; a full channel drops chunks, which the scrollback covers on
// the next attach.
type subscriber struct {
	ch chan []byte
}

// terminal is one live PTY session.
type terminal struct {
	id        schema.SessionID
	workspace schema.WorkspaceKey
	cwd       string
	shell     string

	mu       sync.Mutex
	cond     *sync.Cond
	tty      io.ReadWriteCloser
	back     *scrollback
	subs     map[*subscriber]struct{}
	unacked  int64
	status   schema.SessionStatus
	exitCode int

	highWater int64
	logger    pslog.Logger
}

// pump moves PTY output to subscribers and the scrollback, holding back
// incomplete escape sequences so no chunk splits one.
func (t *terminal) pump(wait func() int, onExit func(id schema.SessionID, code int)) {
	buf := make([]byte, readBufSize)
	var pending []byte
	for {
		n, err := t.tty.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			pending = nil
			if cut := incompleteTail(data); cut >= 0 {
				pending = append([]byte(nil), data[cut:]...)
				data = data[:cut]
			}
			if len(data) > 0 {
				t.deliver(data)
			}
		}
		if err != nil {
			if len(pending) > 0 {
				t.deliver(pending)
			}
			break
		}
	}
	code := 0
	if wait != nil {
		code = wait()
	}
	t.mu.Lock()
	t.status = schema.SessionExited
	t.exitCode = code
	t.cond.Broadcast()
	t.mu.Unlock()
	t.logger.Info("session exited", "session", t.id, "code", code)
	if onExit != nil {
		onExit(t.id, code)
	}
}

// deliver records the chunk and fans it out. With an acking subscriber
// attached, the pump blocks above the high-water mark so a runaway process
// cannot outpace the bridge unboundedly.
func (t *terminal) deliver(data []byte) {
	t.mu.Lock()
	t.back.push(data)
	for t.unacked > t.highWater && len(t.subs) > 0 && t.status == schema.SessionRunning {
		t.cond.Wait()
	}
	t.unacked += int64(len(data))
	for sub := range t.subs {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		select {
		case sub.ch <- chunk:
		default:
			t.logger.Trace("subscriber lagging, chunk dropped", "session", t.id)
		}
	}
	t.mu.Unlock()
}

// ack credits rendered bytes back and resumes a paused pump.
func (t *terminal) ack(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.unacked -= n
	if t.unacked < 0 {
		t.unacked = 0
	}
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *terminal) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan []byte, 256)}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

func (t *terminal) unsubscribe(sub *subscriber) {
	t.mu.Lock()
	if _, ok := t.subs[sub]; ok {
		delete(t.subs, sub)
		close(sub.ch)
	}
	// A departing subscriber must not leave the pump paused forever.
	t.unacked = 0
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *terminal) snapshotScrollback() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.back.snapshot()
}

func (t *terminal) info() schema.TerminalInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return schema.TerminalInfo{
		SessionID: t.id,
		Workspace: t.workspace,
		Cwd:       t.cwd,
		Shell:     t.shell,
		Status:    t.status,
	}
}

// RegistryConfig tunes the terminal registry.
type RegistryConfig struct {
	// Shell overrides $SHELL for spawned terminals.
	Shell string
	// ScrollbackBytes caps per-terminal replay history.
	ScrollbackBytes int
	// HighWater is the unacked-output pause threshold in bytes.
	HighWater int64
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.Shell == "" {
		c.Shell = os.Getenv("SHELL")
	}
	if c.Shell == "" {
		c.Shell = "/bin/bash"
	}
	if c.ScrollbackBytes <= 0 {
		c.ScrollbackBytes = DefaultScrollbackBytes
	}
	if c.HighWater <= 0 {
		c.HighWater = DefaultHighWater
	}
	return c
}

// Registry owns every live terminal for the host process lifetime.
type Registry struct {
	cfg    RegistryConfig
	logger pslog.Logger

	mu        sync.Mutex
	terminals map[schema.SessionID]*terminal
	defaultID schema.SessionID
	onExit    func(id schema.SessionID, code int)
}

// NewRegistry constructs a Registry.
func NewRegistry(cfg RegistryConfig, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		terminals: make(map[schema.SessionID]*terminal),
	}
}

// SetOnExit installs the exit notification callback. Call before Spawn.
func (r *Registry) SetOnExit(fn func(id schema.SessionID, code int)) {
	r.mu.Lock()
	r.onExit = fn
	r.mu.Unlock()
}

// Spawn launches a shell on a fresh PTY and starts its pump.
func (r *Registry) Spawn(workspace schema.WorkspaceKey, cwd string) (*terminal, error) {
	if cwd == "" {
		cwd = os.Getenv("HOME")
	}
	if cwd == "" {
		cwd = "/"
	}
	tty, wait, err := startShell(r.cfg.Shell, cwd)
	if err != nil {
		return nil, err
	}
	t := &terminal{
		id:        schema.SessionID(uuid.NewString()),
		workspace: workspace,
		cwd:       cwd,
		shell:     r.cfg.Shell,
		tty:       tty,
		back:      newScrollback(r.cfg.ScrollbackBytes),
		subs:      make(map[*subscriber]struct{}),
		status:    schema.SessionRunning,
		highWater: r.cfg.HighWater,
		logger:    r.logger,
	}
	t.cond = sync.NewCond(&t.mu)

	r.mu.Lock()
	r.terminals[t.id] = t
	if r.defaultID == "" {
		r.defaultID = t.id
	}
	onExit := r.onExit
	r.mu.Unlock()

	go t.pump(wait, onExit)
	r.logger.Info("session spawned", "session", t.id, "workspace", workspace, "cwd", cwd, "shell", t.shell)
	return t, nil
}

// Get returns the terminal by id, or nil.
func (r *Registry) Get(id schema.SessionID) *terminal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminals[id]
}

// Resolve maps an optional session id to a concrete terminal: an empty id
// picks the default terminal.
func (r *Registry) Resolve(id schema.SessionID) *terminal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		return r.terminals[r.defaultID]
	}
	return r.terminals[id]
}

// WriteInput forwards input bytes to a terminal.
func (r *Registry) WriteInput(id schema.SessionID, data []byte) error {
	t := r.Resolve(id)
	if t == nil {
		return schema.ErrSessionNotFound
	}
	_, err := t.tty.Write(data)
	return err
}

// Resize adjusts the PTY window.
func (r *Registry) Resize(id schema.SessionID, cols, rows int) error {
	t := r.Resolve(id)
	if t == nil {
		return schema.ErrSessionNotFound
	}
	tty, ok := t.tty.(*os.File)
	if !ok {
		return nil
	}
	return pty.Setsize(tty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close tears one terminal down. The pump notices the closed tty and runs
// the exit path.
func (r *Registry) Close(id schema.SessionID) bool {
	r.mu.Lock()
	t := r.terminals[id]
	if t == nil {
		r.mu.Unlock()
		return false
	}
	delete(r.terminals, id)
	if r.defaultID == id {
		r.defaultID = ""
		for other := range r.terminals {
			r.defaultID = other
			break
		}
	}
	r.mu.Unlock()

	t.tty.Close()
	r.logger.Info("session closed", "session", id)
	return true
}

// CloseAll tears everything down on host shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	terminals := make([]*terminal, 0, len(r.terminals))
	for _, t := range r.terminals {
		terminals = append(terminals, t)
	}
	r.terminals = make(map[schema.SessionID]*terminal)
	r.defaultID = ""
	r.mu.Unlock()

	for _, t := range terminals {
		t.tty.Close()
	}
}

// List reports every known terminal, exited ones included.
func (r *Registry) List() []schema.TerminalInfo {
	r.mu.Lock()
	terminals := make([]*terminal, 0, len(r.terminals))
	for _, t := range r.terminals {
		terminals = append(terminals, t)
	}
	r.mu.Unlock()

	out := make([]schema.TerminalInfo, 0, len(terminals))
	for _, t := range terminals {
		out = append(out, t.info())
	}
	return out
}
