package session

import (
	"context"
	"time"

	"github.com/inercia/inferstream/internal/protocol"
)

// Handler receives the lifecycle of one session. Hooks run on the goroutine
// that called Call, one at a time, in frame arrival order; the next frame is
// not read until the hook returns.
type Handler interface {
	// OnOpen runs once, before any frame is read. Handlers typically send
	// their run-task command here.
	OnOpen(ctx context.Context, w Writer)
	// OnEvent receives every decoded event, including terminal ones.
	OnEvent(ctx context.Context, w Writer, ev protocol.Event)
	// OnError receives recoverable decode errors and the final transport
	// error.
	OnError(ctx context.Context, err error)
	// OnClose runs when the connection closes normally.
	OnClose(ctx context.Context, code int, reason string)
}

// DataHandler receives binary frames. Without it, binary frames are dropped.
type DataHandler interface {
	OnData(ctx context.Context, w Writer, data []byte)
}

// PongHandler receives pong frames.
type PongHandler interface {
	OnPong(ctx context.Context, data []byte)
}

// CompleteHandler is notified after a task-finished event was delivered.
type CompleteHandler interface {
	OnComplete(ctx context.Context)
}

// HeartbeatProvider enables keep-alive pings. A zero interval disables them.
type HeartbeatProvider interface {
	HeartbeatInterval() time.Duration
}

// Callbacks adapts plain functions to every handler capability. Nil fields
// are ignored.
type Callbacks struct {
	Open     func(ctx context.Context, w Writer)
	Event    func(ctx context.Context, w Writer, ev protocol.Event)
	Data     func(ctx context.Context, w Writer, data []byte)
	Pong     func(ctx context.Context, data []byte)
	Complete func(ctx context.Context)
	Error    func(ctx context.Context, err error)
	Close    func(ctx context.Context, code int, reason string)

	// Heartbeat is the keep-alive ping interval. Zero disables pings.
	Heartbeat time.Duration
}

func (c Callbacks) OnOpen(ctx context.Context, w Writer) {
	if c.Open != nil {
		c.Open(ctx, w)
	}
}

func (c Callbacks) OnEvent(ctx context.Context, w Writer, ev protocol.Event) {
	if c.Event != nil {
		c.Event(ctx, w, ev)
	}
}

func (c Callbacks) OnData(ctx context.Context, w Writer, data []byte) {
	if c.Data != nil {
		c.Data(ctx, w, data)
	}
}

func (c Callbacks) OnPong(ctx context.Context, data []byte) {
	if c.Pong != nil {
		c.Pong(ctx, data)
	}
}

func (c Callbacks) OnComplete(ctx context.Context) {
	if c.Complete != nil {
		c.Complete(ctx)
	}
}

func (c Callbacks) OnError(ctx context.Context, err error) {
	if c.Error != nil {
		c.Error(ctx, err)
	}
}

func (c Callbacks) OnClose(ctx context.Context, code int, reason string) {
	if c.Close != nil {
		c.Close(ctx, code, reason)
	}
}

func (c Callbacks) HeartbeatInterval() time.Duration {
	return c.Heartbeat
}
