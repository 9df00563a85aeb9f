// Package session drives one inference task conversation over a websocket.
//
// A Session binds a transport connection to a Handler for the duration of a
// single Call. Call reads frames until the connection closes or fails,
// decoding text frames into protocol events and dispatching them, answering
// pings, and optionally sending keep-alive pings of its own.
//
// Terminal events do not end the session: a handler that is done calls
// Writer.Close, and Call returns once the server acknowledges the close.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/transport"
)

// ErrAlreadyCalled is returned by a second Call on the same Session.
var ErrAlreadyCalled = errors.New("session: Call already invoked")

// CloseNoStatus is reported to OnClose when the connection ended after a
// local close without the peer's close frame.
const CloseNoStatus = 1005

// State is the driver state.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithStrictOrdering rejects commands that break the task ordering
// (continue or finish before task-started, anything after a terminal event)
// instead of logging and sending them.
func WithStrictOrdering() Option {
	return func(s *Session) {
		s.strict = true
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session owns a connection for one Call.
type Session struct {
	conn   *transport.Conn
	strict bool
	logger *slog.Logger

	state  atomic.Int32
	called atomic.Bool
	tasks  *tracker
}

// New creates a session over conn. The session takes ownership of conn and
// closes it when Call returns.
func New(conn *transport.Conn, opts ...Option) *Session {
	s := &Session{conn: conn, tasks: newTracker()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger, logging.ComponentSession)
	return s
}

// Call is shorthand for New(conn, opts...).Call(ctx, h).
func Call(ctx context.Context, conn *transport.Conn, h Handler, opts ...Option) error {
	return New(conn, opts...).Call(ctx, h)
}

// State returns the current driver state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("session state", "from", prev, "to", st)
	}
}

// TaskPhase returns the observed phase of a task.
func (s *Session) TaskPhase(taskID string) Phase {
	return s.tasks.phase(taskID)
}

// Call drives the session until the connection closes. It returns nil after
// a normal close and the transport error otherwise. Cancelling ctx closes
// the connection. Call may be invoked only once.
func (s *Session) Call(ctx context.Context, h Handler) error {
	if !s.called.CompareAndSwap(false, true) {
		return ErrAlreadyCalled
	}
	defer s.conn.Close()

	stopWatch := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stopWatch()

	sender := s.conn.Sender()
	w := &writer{sender: sender, tasks: s.tasks, strict: s.strict, logger: s.logger}

	hb := startHeartbeat(sender, heartbeatInterval(h), logging.Heartbeat())
	defer hb.stop()

	s.setState(StateOpening)
	h.OnOpen(ctx, w)
	s.setState(StateActive)

	for {
		f, err := s.conn.Receive()
		if err != nil {
			if sender.CloseSent() && ctx.Err() == nil {
				// We initiated the close and the peer went away without
				// echoing it.
				s.finish(ctx, h, hb, CloseNoStatus, "")
				return nil
			}
			s.setState(StateFailed)
			hb.stop()
			if cerr := ctx.Err(); cerr != nil {
				err = fmt.Errorf("%w: %w", cerr, err)
			}
			s.logger.Debug("session failed", "error", err)
			h.OnError(ctx, err)
			return err
		}

		switch f.Type {
		case transport.FrameText:
			s.dispatchText(ctx, h, w, f.Data)

		case transport.FrameBinary:
			if dh, ok := h.(DataHandler); ok {
				dh.OnData(ctx, w, f.Data)
			} else {
				s.logger.Debug("dropping binary frame", "size", len(f.Data))
			}

		case transport.FramePing:
			if err := sender.Pong(f.Data); err != nil {
				// A broken connection also fails the next read.
				s.logger.Debug("pong failed", "error", err)
			}

		case transport.FramePong:
			if ph, ok := h.(PongHandler); ok {
				ph.OnPong(ctx, f.Data)
			}

		case transport.FrameClose:
			s.finish(ctx, h, hb, f.CloseCode, f.CloseReason)
			return nil
		}
	}
}

func (s *Session) finish(ctx context.Context, h Handler, hb *heartbeat, code int, reason string) {
	s.logger.Debug("session closing", "code", code, "reason", reason)
	h.OnClose(ctx, code, reason)
	s.setState(StateDraining)
	hb.stop()
	s.setState(StateClosed)
}

func (s *Session) dispatchText(ctx context.Context, h Handler, w Writer, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("undecodable event", "error", err)
		h.OnError(ctx, err)
		return
	}
	if err := s.tasks.observe(ev); err != nil {
		s.logger.Warn("dropping event", "error", err)
		h.OnError(ctx, err)
		return
	}

	s.logger.Debug("event", "kind", ev.Kind(), "task_id", protocol.TaskID(ev))
	h.OnEvent(ctx, w, ev)

	if ev.Kind() == protocol.EventTaskFinished {
		if ch, ok := h.(CompleteHandler); ok {
			ch.OnComplete(ctx)
		}
	}
}

func heartbeatInterval(h Handler) time.Duration {
	if hp, ok := h.(HeartbeatProvider); ok {
		return hp.HeartbeatInterval()
	}
	return 0
}
