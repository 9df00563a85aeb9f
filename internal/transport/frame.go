package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameType identifies a websocket frame.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is one inbound frame. CloseCode and CloseReason are set only for
// FrameClose.
type Frame struct {
	Type        FrameType
	Data        []byte
	CloseCode   int
	CloseReason string
}

// Sender is the send half of a Conn. All writes are serialized, so frames
// from different goroutines never interleave.
type Sender struct {
	mu        sync.Mutex
	ws        *websocket.Conn
	writeWait time.Duration
	closeSent bool
}

func (s *Sender) write(op string, messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return &Error{Op: op, Err: err}
	}
	if err := s.ws.WriteMessage(messageType, data); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

func (s *Sender) control(op string, messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.WriteControl(messageType, data, time.Now().Add(s.writeWait)); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

// WriteText sends a text frame.
func (s *Sender) WriteText(data []byte) error {
	return s.write("write text", websocket.TextMessage, data)
}

// WriteBinary sends a binary frame.
func (s *Sender) WriteBinary(data []byte) error {
	return s.write("write binary", websocket.BinaryMessage, data)
}

// WriteJSON marshals v and sends it as a text frame.
func (s *Sender) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.WriteText(data)
}

// Ping sends a ping control frame.
func (s *Sender) Ping(data []byte) error {
	return s.control("ping", websocket.PingMessage, data)
}

// Pong sends a pong control frame.
func (s *Sender) Pong(data []byte) error {
	return s.control("pong", websocket.PongMessage, data)
}

// WriteClose sends a close frame. Only the first call writes; later calls
// return nil.
func (s *Sender) WriteClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeSent {
		return nil
	}
	s.closeSent = true
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait)); err != nil {
		return &Error{Op: "write close", Err: err}
	}
	return nil
}

// CloseSent reports whether a close frame has been written.
func (s *Sender) CloseSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSent
}
