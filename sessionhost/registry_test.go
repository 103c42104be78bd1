package sessionhost

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/termbridge/schema"
)

// fakeTTY stands in for a PTY: the pump reads what the test writes to pw,
// and input lands in a buffer instead of a shell.
type fakeTTY struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu    sync.Mutex
	input bytes.Buffer
}

func newFakeTTY() *fakeTTY {
	pr, pw := io.Pipe()
	return &fakeTTY{pr: pr, pw: pw}
}

func (f *fakeTTY) Read(p []byte) (int, error) { return f.pr.Read(p) }

func (f *fakeTTY) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.Write(p)
}

func (f *fakeTTY) Close() error {
	f.pw.Close()
	return f.pr.Close()
}

func (f *fakeTTY) inputString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

// emit pushes bytes through the fake PTY as process output.
func (f *fakeTTY) emit(t *testing.T, data string) {
	t.Helper()
	if _, err := f.pw.Write([]byte(data)); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

type shellStub struct {
	mu       sync.Mutex
	ttys     []*fakeTTY
	exitCode int
}

func (s *shellStub) tty(t *testing.T, i int) *fakeTTY {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.ttys) {
		t.Fatalf("no fake tty at index %d", i)
	}
	return s.ttys[i]
}

func installShellStub(t *testing.T) *shellStub {
	t.Helper()
	stub := &shellStub{}
	orig := startShell
	startShell = func(shell, cwd string) (io.ReadWriteCloser, func() int, error) {
		ft := newFakeTTY()
		stub.mu.Lock()
		stub.ttys = append(stub.ttys, ft)
		stub.mu.Unlock()
		return ft, func() int {
			stub.mu.Lock()
			defer stub.mu.Unlock()
			return stub.exitCode
		}, nil
	}
	t.Cleanup(func() { startShell = orig })
	return stub
}

func recvChunk(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case chunk := <-ch:
		return chunk
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for output chunk")
		return nil
	}
}

func TestSpawnDeliversOutputToSubscriber(t *testing.T) {
	stub := installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	sub := term.subscribe()
	defer term.unsubscribe(sub)

	stub.tty(t, 0).emit(t, "hello\r\n")
	if got := string(recvChunk(t, sub.ch)); got != "hello\r\n" {
		t.Fatalf("chunk = %q, want %q", got, "hello\r\n")
	}
	if got := string(term.snapshotScrollback()); got != "hello\r\n" {
		t.Fatalf("scrollback = %q", got)
	}
	term.ack(7)
}

func TestPumpHoldsBackIncompleteEscapeSequence(t *testing.T) {
	stub := installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	sub := term.subscribe()
	defer term.unsubscribe(sub)

	stub.tty(t, 0).emit(t, "abc\x1b[")
	if got := string(recvChunk(t, sub.ch)); got != "abc" {
		t.Fatalf("first chunk = %q, want %q", got, "abc")
	}
	term.ack(3)

	stub.tty(t, 0).emit(t, "31mred")
	if got := string(recvChunk(t, sub.ch)); got != "\x1b[31mred" {
		t.Fatalf("second chunk = %q, want %q", got, "\x1b[31mred")
	}
	term.ack(8)
}

func TestScrollbackSurvivesWithoutSubscribers(t *testing.T) {
	stub := installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	stub.tty(t, 0).emit(t, "while you were away\r\n")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if string(term.snapshotScrollback()) == "while you were away\r\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scrollback = %q", term.snapshotScrollback())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlowControlPausesUntilAck(t *testing.T) {
	stub := installShellStub(t)
	reg := NewRegistry(RegistryConfig{HighWater: 4}, nil)
	defer reg.CloseAll()

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	sub := term.subscribe()
	defer term.unsubscribe(sub)

	stub.tty(t, 0).emit(t, "0123456789")
	if got := string(recvChunk(t, sub.ch)); got != "0123456789" {
		t.Fatalf("first chunk = %q", got)
	}

	// 10 unacked bytes exceed the high water; the next chunk must not be
	// fanned out until the first is acknowledged.
	stub.tty(t, 0).emit(t, "more")
	select {
	case chunk := <-sub.ch:
		t.Fatalf("chunk %q delivered before ack", chunk)
	case <-time.After(50 * time.Millisecond):
	}

	term.ack(10)
	if got := string(recvChunk(t, sub.ch)); got != "more" {
		t.Fatalf("post-ack chunk = %q", got)
	}
}

func TestExitReportsStatusAndCallback(t *testing.T) {
	stub := installShellStub(t)
	stub.exitCode = 3
	reg := NewRegistry(RegistryConfig{}, nil)

	exited := make(chan int, 1)
	reg.SetOnExit(func(id schema.SessionID, code int) { exited <- code })

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	stub.tty(t, 0).Close()

	select {
	case code := <-exited:
		if code != 3 {
			t.Fatalf("exit code = %d, want 3", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for exit callback")
	}
	if info := term.info(); info.Status != schema.SessionExited {
		t.Fatalf("status = %q, want exited", info.Status)
	}
}

func TestResolveDefaultFollowsClose(t *testing.T) {
	installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	first, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	second, err := reg.Spawn("ws-b", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if got := reg.Resolve(""); got != first {
		t.Fatalf("default should be the first spawned terminal")
	}
	if got := reg.Resolve(second.id); got != second {
		t.Fatalf("resolve by id failed")
	}
	if !reg.Close(first.id) {
		t.Fatalf("close reported unknown session")
	}
	if got := reg.Resolve(""); got != second {
		t.Fatalf("default should move to the surviving terminal")
	}
	if reg.Close(first.id) {
		t.Fatalf("second close of same id should report false")
	}
}

func TestWriteInputReachesTerminal(t *testing.T) {
	stub := installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	term, err := reg.Spawn("ws-a", "/tmp")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := reg.WriteInput(term.id, []byte("ls -la\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if got := stub.tty(t, 0).inputString(); got != "ls -la\n" {
		t.Fatalf("input = %q", got)
	}
	if err := reg.WriteInput("nope", nil); err != schema.ErrSessionNotFound {
		t.Fatalf("unknown session error = %v", err)
	}
}

func TestListReportsAllTerminals(t *testing.T) {
	installShellStub(t)
	reg := NewRegistry(RegistryConfig{}, nil)
	defer reg.CloseAll()

	if _, err := reg.Spawn("ws-a", "/tmp"); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := reg.Spawn("ws-b", "/tmp"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	items := reg.List()
	if len(items) != 2 {
		t.Fatalf("list = %d items, want 2", len(items))
	}
	workspaces := map[schema.WorkspaceKey]bool{}
	for _, item := range items {
		workspaces[item.Workspace] = true
		if item.Status != schema.SessionRunning {
			t.Fatalf("status = %q, want running", item.Status)
		}
	}
	if !workspaces["ws-a"] || !workspaces["ws-b"] {
		t.Fatalf("workspaces = %v", workspaces)
	}
}
