// Package transport opens the upgraded websocket used by inference tasks and
// splits it into a locked send half and a single-consumer receive half.
//
// Control frames (ping, pong, close) are surfaced to the receiver as Frames
// instead of being answered by the websocket library, so the caller decides
// how to react to them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEndpoint is the inference websocket endpoint.
const DefaultEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

// Header names sent on the upgrade request.
const (
	HeaderAuthorization  = "Authorization"
	HeaderWorkspace      = "X-DashScope-WorkSpace"
	HeaderDataInspection = "X-DashScope-DataInspection"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second

	// maxErrorBody bounds how much of a rejected upgrade response is kept.
	maxErrorBody = 4096
)

// ErrClosed is returned by Receive once the peer's close frame has been
// delivered, and by Conn methods after Close.
var ErrClosed = errors.New("transport: connection closed")

// Config describes how to reach the inference endpoint.
type Config struct {
	// Endpoint is the ws:// or wss:// URL. Default: DefaultEndpoint
	Endpoint string
	// APIKey is sent as a bearer token.
	APIKey string
	// Workspace, when set, selects the workspace the task is billed to.
	Workspace string
	// DataInspection, when set, is sent verbatim in the data inspection header.
	DataInspection string

	// HandshakeTimeout bounds the upgrade. Default: 10s
	HandshakeTimeout time.Duration
	// WriteWait is the deadline applied to every write. Default: 10s
	WriteWait time.Duration
	// MaxMessageSize limits inbound frames. Zero means no limit.
	MaxMessageSize int64

	// Logger receives transport debug output. Nil uses slog.Default.
	Logger *slog.Logger
}

// Header builds the upgrade request headers.
func (c Config) Header() http.Header {
	h := http.Header{}
	h.Set(HeaderAuthorization, "Bearer "+c.APIKey)
	if c.Workspace != "" {
		h.Set(HeaderWorkspace, c.Workspace)
	}
	if c.DataInspection != "" {
		h.Set(HeaderDataInspection, c.DataInspection)
	}
	return h
}

// Conn is one upgraded connection. Sender may be shared freely; Receive must
// only be called from a single goroutine.
type Conn struct {
	ws     *websocket.Conn
	sender *Sender
	logger *slog.Logger

	// Owned by the receiving goroutine. Control frame handlers run inside
	// ReadMessage on that goroutine, so no lock is needed.
	pending     []Frame
	readErr     error
	gotClose    bool
	closeOnce   sync.Once
	closeResult error
}

// Dial opens the websocket. A rejected upgrade is returned as a *DialError and
// is never retried.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, cfg.Header())
	if err != nil {
		de := &DialError{Endpoint: endpoint, Err: err}
		if resp != nil {
			de.StatusCode = resp.StatusCode
			if resp.Body != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				de.Body = string(body)
			}
		}
		logger.Debug("websocket upgrade failed", "endpoint", endpoint, "status", de.StatusCode, "error", err)
		return nil, de
	}

	logger.Debug("websocket connected", "endpoint", endpoint)
	return newConn(ws, cfg, logger), nil
}

func newConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Conn{
		ws:     ws,
		sender: &Sender{ws: ws, writeWait: writeWait},
		logger: logger,
	}
	ws.SetPingHandler(func(data string) error {
		c.pending = append(c.pending, Frame{Type: FramePing, Data: []byte(data)})
		return nil
	})
	ws.SetPongHandler(func(data string) error {
		c.pending = append(c.pending, Frame{Type: FramePong, Data: []byte(data)})
		return nil
	})
	ws.SetCloseHandler(func(code int, text string) error {
		c.gotClose = true
		c.pending = append(c.pending, Frame{Type: FrameClose, CloseCode: code, CloseReason: text})
		// Complete the closing handshake unless we started it.
		if err := c.sender.WriteClose(code, ""); err != nil {
			c.logger.Debug("close echo failed", "error", err)
		}
		return nil
	})
	return c
}

// Sender returns the send half.
func (c *Conn) Sender() *Sender {
	return c.sender
}

// Receive returns the next inbound frame in arrival order. It blocks until a
// frame is available or the connection fails. After the peer's close frame
// has been returned, Receive returns ErrClosed.
func (c *Conn) Receive() (Frame, error) {
	for {
		if len(c.pending) > 0 {
			f := c.pending[0]
			c.pending = c.pending[1:]
			return f, nil
		}
		if c.readErr != nil {
			return Frame{}, c.readErr
		}

		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if c.gotClose && errors.As(err, &ce) {
				c.readErr = ErrClosed
			} else {
				c.readErr = &Error{Op: "read", Err: err}
			}
			continue
		}

		switch mt {
		case websocket.TextMessage:
			c.pending = append(c.pending, Frame{Type: FrameText, Data: data})
		case websocket.BinaryMessage:
			c.pending = append(c.pending, Frame{Type: FrameBinary, Data: data})
		}
	}
}

// Close tears down the underlying network connection without a closing
// handshake. It unblocks a pending Receive and is safe to call repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeResult = c.ws.Close()
	})
	return c.closeResult
}

// Error is a failure of the underlying connection.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DialError reports a failed upgrade.
type DialError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("dial %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("dial %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("dial %s: %v", e.Endpoint, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}
