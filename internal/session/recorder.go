package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
)

// RecordType identifies an entry in a session recording.
type RecordType string

const (
	RecordOpen     RecordType = "open"
	RecordSend     RecordType = "send"
	RecordSendData RecordType = "send_data"
	RecordEvent    RecordType = "event"
	RecordData     RecordType = "data"
	RecordPong     RecordType = "pong"
	RecordComplete RecordType = "complete"
	RecordError    RecordType = "error"
	RecordClose    RecordType = "close"
)

// Record is one line of a session recording. Binary payloads are recorded
// by size only.
type Record struct {
	Seq       int64              `json:"seq"`
	Timestamp time.Time          `json:"ts"`
	Type      RecordType         `json:"type"`
	Action    protocol.Action    `json:"action,omitempty"`
	Kind      protocol.EventKind `json:"kind,omitempty"`
	TaskID    string             `json:"task_id,omitempty"`
	Frame     json.RawMessage    `json:"frame,omitempty"`
	Bytes     int                `json:"bytes,omitempty"`
	Error     string             `json:"error,omitempty"`
	Code      int                `json:"code,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// Recorder wraps a Handler and appends everything that crosses the session,
// in both directions, to w as JSON lines. Recording failures are logged once
// and never affect the session.
type Recorder struct {
	h      Handler
	logger *slog.Logger

	mu     sync.Mutex
	w      io.Writer
	seq    int64
	failed bool
}

// NewRecorder records the session driven by h to w.
func NewRecorder(h Handler, w io.Writer) *Recorder {
	return &Recorder{h: h, w: w, logger: logging.Session()}
}

func (r *Recorder) record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return
	}
	r.seq++
	rec.Seq = r.seq
	rec.Timestamp = time.Now()

	data, err := json.Marshal(rec)
	if err == nil {
		_, err = r.w.Write(append(data, '\n'))
	}
	if err != nil {
		r.failed = true
		r.logger.Warn("session recording stopped", "seq", rec.Seq, "error", err)
	}
}

func (r *Recorder) OnOpen(ctx context.Context, w Writer) {
	r.record(Record{Type: RecordOpen})
	r.h.OnOpen(ctx, &recordingWriter{Writer: w, r: r})
}

func (r *Recorder) OnEvent(ctx context.Context, w Writer, ev protocol.Event) {
	rec := Record{Type: RecordEvent, Kind: ev.Kind(), TaskID: protocol.TaskID(ev)}
	if frame, err := protocol.Encode(ev); err == nil {
		rec.Frame = frame
	}
	r.record(rec)
	r.h.OnEvent(ctx, &recordingWriter{Writer: w, r: r}, ev)
}

func (r *Recorder) OnData(ctx context.Context, w Writer, data []byte) {
	r.record(Record{Type: RecordData, Bytes: len(data)})
	if dh, ok := r.h.(DataHandler); ok {
		dh.OnData(ctx, &recordingWriter{Writer: w, r: r}, data)
	}
}

func (r *Recorder) OnPong(ctx context.Context, data []byte) {
	r.record(Record{Type: RecordPong, Bytes: len(data)})
	if ph, ok := r.h.(PongHandler); ok {
		ph.OnPong(ctx, data)
	}
}

func (r *Recorder) OnComplete(ctx context.Context) {
	r.record(Record{Type: RecordComplete})
	if ch, ok := r.h.(CompleteHandler); ok {
		ch.OnComplete(ctx)
	}
}

func (r *Recorder) OnError(ctx context.Context, err error) {
	r.record(Record{Type: RecordError, Error: err.Error()})
	r.h.OnError(ctx, err)
}

func (r *Recorder) OnClose(ctx context.Context, code int, reason string) {
	r.record(Record{Type: RecordClose, Code: code, Reason: reason})
	r.h.OnClose(ctx, code, reason)
}

func (r *Recorder) HeartbeatInterval() time.Duration {
	return heartbeatInterval(r.h)
}

// recordingWriter records outgoing frames before sending them. It may be
// kept by the wrapped handler and used from other goroutines.
type recordingWriter struct {
	Writer
	r *Recorder
}

func (w *recordingWriter) Send(cmd protocol.Command) error {
	rec := Record{Type: RecordSend, Action: cmd.Header.Action, TaskID: cmd.Header.TaskID}
	if frame, err := cmd.Marshal(); err == nil {
		rec.Frame = frame
	}
	w.r.record(rec)
	return w.Writer.Send(cmd)
}

func (w *recordingWriter) WriteBinary(data []byte) error {
	w.r.record(Record{Type: RecordSendData, Bytes: len(data)})
	return w.Writer.WriteBinary(data)
}

// ReadRecording loads a recording written by a Recorder.
func ReadRecording(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return records, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read recording: %w", err)
	}
	return records, nil
}
