package internal

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	resolveErr   error
	blockResolve bool
	conn         *fakeConn
}

func (t *fakeTransport) Resolve(ctx context.Context, host, port string) ([]string, error) {
	if t.blockResolve {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.resolveErr != nil {
		return nil, t.resolveErr
	}
	return []string{net.JoinHostPort(host, port)}, nil
}

func (t *fakeTransport) Connect(ctx context.Context, addrs []string) (net.Conn, error) {
	a, b := net.Pipe()
	b.Close()
	return a, nil
}

func (t *fakeTransport) Handshake(ctx context.Context, nc net.Conn, host string) (Conn, error) {
	return t.conn, nil
}

type fakeConn struct {
	frames     chan []byte
	wrote      chan struct{}
	panicWrite bool

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn(frames ...[]byte) *fakeConn {
	c := &fakeConn{frames: make(chan []byte, len(frames)+1), wrote: make(chan struct{}, 16)}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	if c.panicWrite {
		panic("write exploded")
	}
	c.mu.Lock()
	c.writes = append(c.writes, data)
	c.mu.Unlock()
	c.wrote <- struct{}{}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func runSession(t *testing.T, f *fixture, cfg PipelineConfig, tr Transport) (*Session, int, error) {
	t.Helper()
	releases := 0
	cfg.Schema = "chain"
	s := NewSession(SessionConfig{Endpoint: "localhost:8080", Pipeline: cfg}, tr, f.store, func(*Session) { releases++ })
	err := s.Run(context.Background())
	return s, releases, err
}

func TestSessionStreamsUntilStop(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(
		loadShipABI(t),
		f.result(msg{num: 1, rows: 2, traces: 1}),
		f.result(msg{num: 2, irr: 1, rows: 1}),
		f.result(msg{num: 0, irr: 1}),
		f.result(msg{num: 3, irr: 2}),
	)
	s, releases, err := runSession(t, f, PipelineConfig{StopBefore: 3}, &fakeTransport{conn: conn})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StateClosed || releases != 1 || !conn.closed {
		t.Errorf("state=%s releases=%d closed=%v", s.State(), releases, conn.closed)
	}
	// initial request plus one after each handled message
	if n := conn.writeCount(); n != 4 {
		t.Errorf("writes = %d, want 4", n)
	}
	if got := f.stored(); got.Head != 2 || got.HeadID != bid(2, 0) || got != s.Status() {
		t.Errorf("stored %+v, session %+v", got, s.Status())
	}
}

func TestSessionResolveFailure(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	s, releases, err := runSession(t, f, PipelineConfig{}, &fakeTransport{resolveErr: errors.New("no such host")})

	var step *StepError
	if !errors.As(err, &step) || step.Step != "resolve" || Classify(err) != "transport" {
		t.Fatalf("err = %v", err)
	}
	if s.State() != StateClosed || releases != 1 {
		t.Errorf("state=%s releases=%d", s.State(), releases)
	}
}

func TestSessionRejectsABIVersion(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	abiDoc := strings.Replace(string(loadShipABI(t)), "eosio::abi/1.1", "eosio::abi/2.0", 1)
	conn := newFakeConn([]byte(abiDoc))
	_, _, err := runSession(t, f, PipelineConfig{}, &fakeTransport{conn: conn})
	if Classify(err) != "protocol" {
		t.Fatalf("err = %v (%s), want protocol", err, Classify(err))
	}
	if conn.writeCount() != 0 {
		t.Error("request sent after a rejected abi")
	}
}

func TestSessionConsistencyFailure(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(
		loadShipABI(t),
		f.result(msg{num: 1}),
		f.result(msg{num: 2, prevFork: 9}),
	)
	_, releases, err := runSession(t, f, PipelineConfig{}, &fakeTransport{conn: conn})
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("err = %v", err)
	}
	if releases != 1 || f.stored().Head != 1 {
		t.Errorf("releases=%d head=%d", releases, f.stored().Head)
	}
}

func TestSessionReadEOF(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(loadShipABI(t))
	close(conn.frames)
	_, _, err := runSession(t, f, PipelineConfig{}, &fakeTransport{conn: conn})
	var step *StepError
	if !errors.As(err, &step) || step.Step != "read" || !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionRecoversPanic(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(loadShipABI(t))
	conn.panicWrite = true
	s, releases, err := runSession(t, f, PipelineConfig{}, &fakeTransport{conn: conn})
	if err == nil || !strings.Contains(err.Error(), "write exploded") {
		t.Fatalf("err = %v", err)
	}
	if s.State() != StateClosed || releases != 1 {
		t.Errorf("state=%s releases=%d", s.State(), releases)
	}
}

func TestSessionClose(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(loadShipABI(t))
	released := make(chan struct{})
	s := NewSession(SessionConfig{Endpoint: "localhost:8080", Pipeline: PipelineConfig{Schema: "chain"}},
		&fakeTransport{conn: conn}, f.store, func(*Session) { close(released) })

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-conn.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("initial request not sent")
	}
	s.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after Close = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	<-released
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
}

func TestSessionContextCancel(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	conn := newFakeConn(loadShipABI(t))
	s := NewSession(SessionConfig{Endpoint: "localhost:8080", Pipeline: PipelineConfig{Schema: "chain"}},
		&fakeTransport{conn: conn}, f.store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-conn.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("initial request not sent")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionCloseBeforeRun(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	releases := 0
	s := NewSession(SessionConfig{Endpoint: "localhost:8080"}, &fakeTransport{}, f.store, func(*Session) { releases++ })
	s.Close()
	if err := s.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run = %v, want ErrClosed", err)
	}
	if releases != 1 {
		t.Errorf("releases = %d", releases)
	}
}

func TestSessionBadEndpoint(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	s := NewSession(SessionConfig{Endpoint: "no-port"}, &fakeTransport{}, f.store, nil)
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected endpoint error")
	}
}
