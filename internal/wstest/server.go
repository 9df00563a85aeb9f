// Package wstest provides a scripted fake inference server for tests.
//
// Each accepted connection runs the script passed to NewServer with a Peer
// wrapping the server side of the socket. The script reads commands and
// writes events in whatever order the test needs; when it returns, the
// connection is closed.
package wstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/inferstream/internal/protocol"
)

// Script drives one server-side connection.
type Script func(p *Peer)

// Server is an httptest server that upgrades every request to a websocket.
type Server struct {
	*httptest.Server

	t        testing.TB
	upgrader websocket.Upgrader
	script   Script

	mu      sync.Mutex
	headers []http.Header
	peers   []*Peer
	done    sync.WaitGroup
}

// NewServer starts a server running script for every connection. It is
// closed automatically when the test ends.
func NewServer(t testing.TB, script Script) *Server {
	t.Helper()
	s := &Server{t: t, script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// NewRejectingServer starts a server that refuses every upgrade with status
// and body.
func NewRejectingServer(t testing.TB, status int, body string) *Server {
	t.Helper()
	s := &Server{t: t}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordHeader(r.Header)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Headers returns the upgrade request headers seen so far.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Wait blocks until every script has returned.
func (s *Server) Wait() {
	s.done.Wait()
}

// Close drops every connection, waits for running scripts and shuts the
// server down.
func (s *Server) Close() {
	s.mu.Lock()
	peers := s.peers
	s.mu.Unlock()
	for _, p := range peers {
		p.Drop()
	}
	s.done.Wait()
	s.Server.Close()
}

func (s *Server) recordHeader(h http.Header) {
	s.mu.Lock()
	s.headers = append(s.headers, h.Clone())
	s.mu.Unlock()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.recordHeader(r.Header)
	s.done.Add(1)
	defer s.done.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("wstest: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	p := newPeer(s.t, conn, r.Header)
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()
	s.script(p)
}

// Peer is the server side of one connection.
type Peer struct {
	t      testing.TB
	conn   *websocket.Conn
	Header http.Header

	writeMu sync.Mutex

	pings atomic.Int32
	pongs atomic.Int32

	mu     sync.Mutex
	audio  []byte
	binary int
}

func newPeer(t testing.TB, conn *websocket.Conn, header http.Header) *Peer {
	p := &Peer{t: t, conn: conn, Header: header}
	conn.SetPingHandler(func(data string) error {
		p.pings.Add(1)
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		p.pongs.Add(1)
		return nil
	})
	return p
}

// Received is a command read from the client.
type Received struct {
	Action  protocol.Action
	TaskID  string
	Payload json.RawMessage
	Raw     []byte
}

// Text returns payload.input.text of a continue-task command.
func (r Received) Text() string {
	var p protocol.ContinueTaskPayload
	_ = json.Unmarshal(r.Payload, &p)
	return p.Input.Text
}

// Parameters decodes payload.parameters of a run-task command into v.
func (r Received) Parameters(v any) error {
	var p struct {
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return err
	}
	return json.Unmarshal(p.Parameters, v)
}

// RunTask decodes the payload of a run-task command.
func (r Received) RunTask() (protocol.RunTaskPayload, error) {
	var p protocol.RunTaskPayload
	err := json.Unmarshal(r.Payload, &p)
	return p, err
}

// ReadCommand reads the next text frame as a command. Binary frames read
// on the way are appended to Audio.
func (p *Peer) ReadCommand() (Received, error) {
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			return Received{}, err
		}
		if mt == websocket.BinaryMessage {
			p.mu.Lock()
			p.audio = append(p.audio, data...)
			p.binary++
			p.mu.Unlock()
			continue
		}
		var msg struct {
			Header  protocol.Header `json:"header"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return Received{}, fmt.Errorf("wstest: bad command %s: %w", data, err)
		}
		return Received{Action: msg.Header.Action, TaskID: msg.Header.TaskID, Payload: msg.Payload, Raw: data}, nil
	}
}

// MustReadCommand reads a command and reports a test error unless it has the
// wanted action. The returned ok is false on any failure.
func (p *Peer) MustReadCommand(want protocol.Action) (Received, bool) {
	cmd, err := p.ReadCommand()
	if err != nil {
		p.t.Errorf("wstest: read %s: %v", want, err)
		return cmd, false
	}
	if cmd.Action != want {
		p.t.Errorf("wstest: action = %s, want %s", cmd.Action, want)
		return cmd, false
	}
	return cmd, true
}

// ReadUntilClose reads frames until the client closes and returns the close
// code, or -1 if the connection ended without a close frame.
func (p *Peer) ReadUntilClose() int {
	for {
		if _, err := p.ReadCommand(); err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return ce.Code
			}
			return -1
		}
	}
}

// Audio returns the binary payload received so far.
func (p *Peer) Audio() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.audio...)
}

// BinaryFrames returns the number of binary frames received so far.
func (p *Peer) BinaryFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binary
}

// Pings returns the number of pings received from the client.
func (p *Peer) Pings() int { return int(p.pings.Load()) }

// Pongs returns the number of pongs received from the client.
func (p *Peer) Pongs() int { return int(p.pongs.Load()) }

// SendEvent encodes ev and writes it as a text frame.
func (p *Peer) SendEvent(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	return p.SendText(string(data))
}

// SendText writes a raw text frame.
func (p *Peer) SendText(s string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// SendBinary writes a binary frame.
func (p *Peer) SendBinary(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Ping writes a ping control frame.
func (p *Peer) Ping(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, data, time.Now().Add(time.Second))
}

// Pong writes an unsolicited pong control frame.
func (p *Peer) Pong(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PongMessage, data, time.Now().Add(time.Second))
}

// Close writes a close frame with code and reason.
func (p *Peer) Close(code int, reason string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// SwallowClose stops the peer from echoing the client's close frame.
func (p *Peer) SwallowClose() {
	p.conn.SetCloseHandler(func(int, string) error { return nil })
}

// Drop closes the network connection without a closing handshake.
func (p *Peer) Drop() {
	p.conn.Close()
}
