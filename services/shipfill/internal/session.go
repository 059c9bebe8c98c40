package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/greymass/roborovski/libraries/abi"
	"github.com/greymass/roborovski/libraries/logger"
	"github.com/greymass/roborovski/services/shipfill/internal/metrics"
)

type SessionConfig struct {
	Endpoint string // host:port
	Pipeline PipelineConfig
}

// Session is one connection to a state-history node. It runs the state
// machine until the stream stops or fails and never reconnects.
type Session struct {
	cfg       SessionConfig
	transport Transport
	store     *Store
	release   func(*Session)

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	closing bool
	started bool

	releaseOnce sync.Once

	// owned by the Run goroutine
	host, port string
	addrs      []string
	netConn    net.Conn
	conn       Conn
	pipeline   *Pipeline
	status     FillStatus
	err        error
}

// NewSession creates a session. release is called exactly once when the
// session ends, so the owner can drop its reference.
func NewSession(cfg SessionConfig, transport Transport, store *Store, release func(*Session)) *Session {
	return &Session{cfg: cfg, transport: transport, store: store, release: release}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Status is the fill status as of the last handled message. It is only
// meaningful after Run returns.
func (s *Session) Status() FillStatus {
	return s.status
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	metrics.SetState(s.cfg.Pipeline.Schema, StateNames(), state.String())
	logger.Printf("debug-session", "state %s", state)
}

// Run drives the session to completion. It returns nil when the stream
// stopped at the configured height, was closed or ctx was cancelled, and
// the failure otherwise.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closing || s.started {
		s.mu.Unlock()
		s.doRelease()
		return ErrClosed
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	host, port, err := net.SplitHostPort(s.cfg.Endpoint)
	if err != nil {
		s.err = fmt.Errorf("endpoint %q: %w", s.cfg.Endpoint, err)
		s.finish()
		return s.err
	}
	s.host, s.port = host, port
	logger.Printf("session", "connect to %s", s.cfg.Endpoint)

	state, effect := Transition(StateResolving, EventStart)
	for state != StateClosed {
		s.setState(state)
		state, effect = Transition(state, s.perform(ctx, effect))
	}
	s.setState(StateClosed)
	s.finish()
	return s.err
}

// Close ends the session from any goroutine. A pending network operation is
// cancelled; Run then returns without error.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		s.doRelease()
	}
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) perform(ctx context.Context, effect Effect) Event {
	switch effect {
	case EffectResolve:
		addrs, err := s.transport.Resolve(ctx, s.host, s.port)
		if err != nil {
			return s.fail(ctx, "resolve", err)
		}
		s.addrs = addrs
		return EventResolved

	case EffectConnect:
		nc, err := s.transport.Connect(ctx, s.addrs)
		if err != nil {
			return s.fail(ctx, "connect", err)
		}
		s.netConn = nc
		return EventConnected

	case EffectHandshake:
		conn, err := s.transport.Handshake(ctx, s.netConn, s.cfg.Endpoint)
		if err != nil {
			return s.fail(ctx, "handshake", err)
		}
		s.conn = conn
		return EventHandshaken

	case EffectRead:
		data, err := s.conn.Read(ctx)
		if err != nil {
			return s.fail(ctx, "read", err)
		}
		metrics.MessageBytes.WithLabelValues(s.cfg.Pipeline.Schema).Add(float64(len(data)))
		stop, err := s.dispatch(ctx, data)
		if err != nil {
			s.err = err
			return EventFailed
		}
		if stop {
			return EventStop
		}
		return EventMessage
	}
	s.err = fmt.Errorf("unexpected effect %s", effect)
	return EventFailed
}

// fail records a network step failure. Failures caused by Close or by
// cancelling the context passed to Run are a clean stop.
func (s *Session) fail(ctx context.Context, step string, err error) Event {
	if s.isClosing() || ctx.Err() != nil {
		return EventStop
	}
	s.err = &StepError{Step: step, Err: err}
	return EventFailed
}

// dispatch handles one message. Panics are recovered and returned as
// errors.
func (s *Session) dispatch(ctx context.Context, data []byte) (stop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: panic: %v", r)
		}
	}()

	var req []byte
	if s.pipeline == nil {
		if req, err = s.receiveABI(data); err != nil {
			return false, err
		}
	} else {
		status, outcome, err := s.pipeline.HandleResult(data, s.status)
		if err != nil {
			return false, err
		}
		if outcome == OutcomeStop {
			return true, nil
		}
		s.status = status
		if req, err = s.pipeline.NextRequest(status); err != nil {
			return false, err
		}
	}

	if err := s.conn.Write(ctx, req); err != nil {
		if s.isClosing() || ctx.Err() != nil {
			return true, nil
		}
		return false, &StepError{Step: "write", Err: err}
	}
	return false, nil
}

func (s *Session) receiveABI(data []byte) ([]byte, error) {
	reg, err := abi.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	logger.Printf("session", "received abi %s", reg.Version)
	pipeline, err := NewPipeline(reg, s.store, s.cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	status, req, err := pipeline.Start()
	if err != nil {
		return nil, err
	}
	s.pipeline = pipeline
	s.status = status
	return req, nil
}

func (s *Session) finish() {
	if s.conn != nil {
		s.conn.Close()
	} else if s.netConn != nil {
		s.netConn.Close()
	}
	if s.err != nil {
		kind := Classify(s.err)
		metrics.SessionErrors.WithLabelValues(s.cfg.Pipeline.Schema, kind).Inc()
		var step *StepError
		if errors.As(s.err, &step) {
			logger.Error("%s: %v", step.Step, step.Err)
		} else {
			logger.Error("session closed (%s): %v", kind, s.err)
		}
	} else {
		logger.Printf("session", "session closed at head %d", s.status.Head)
	}
	s.doRelease()
}

func (s *Session) doRelease() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release(s)
		}
	})
}
