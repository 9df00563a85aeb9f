// Package asr streams audio to a real-time recognition task and collects
// the transcript.
package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/session"
)

const (
	DefaultModel = "paraformer-realtime-v2"

	// DefaultChunkSize is 100ms of 16kHz 16-bit mono PCM.
	DefaultChunkSize = 3200
	// DefaultChunkInterval paces audio at real time.
	DefaultChunkInterval = 100 * time.Millisecond
)

// ErrIncomplete is returned when the session ended before a terminal event.
var ErrIncomplete = errors.New("recognition ended before the task finished")

// Options configures a recognition.
type Options struct {
	// Model defaults to DefaultModel.
	Model     string
	Params    protocol.RecognitionParams
	Resources []protocol.Resource

	// TaskID defaults to a fresh protocol.NewTaskID.
	TaskID string

	// ChunkSize is the size of each binary frame. Default: DefaultChunkSize
	ChunkSize int
	// ChunkInterval is the delay between frames. Zero uses
	// DefaultChunkInterval; a negative value sends as fast as possible.
	ChunkInterval time.Duration

	// Heartbeat is the keep-alive ping interval. Zero disables pings.
	Heartbeat time.Duration

	// OnSentence, if set, is called for every intermediate and final
	// sentence as it arrives.
	OnSentence func(s *protocol.Sentence)

	Logger *slog.Logger
}

// Transcript is the outcome of a recognition.
type Transcript struct {
	TaskID string
	// Sentences holds the final sentences in arrival order.
	Sentences []protocol.Sentence
	Usage     *protocol.Usage
}

// Text joins the final sentences.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Sentences))
	for _, s := range t.Sentences {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "")
}

// Recognizer is a session.Handler that sends run-task on open, streams audio
// once the task has started, then sends finish-task. It closes the session
// on the task's terminal event.
//
// After the session returns, call Wait before reading Result.
type Recognizer struct {
	opts   Options
	audio  io.Reader
	logger *slog.Logger

	transcript Transcript
	finished   bool

	mu       sync.Mutex
	err      error
	cancel   context.CancelFunc
	readDone chan struct{}
	wg       sync.WaitGroup
}

// NewRecognizer creates a recognizer reading audio from r.
func NewRecognizer(r io.Reader, opts Options) *Recognizer {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.TaskID == "" {
		opts.TaskID = protocol.NewTaskID()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkInterval == 0 {
		opts.ChunkInterval = DefaultChunkInterval
	}
	logger := logging.WithTask(logging.OrDefault(opts.Logger, logging.ComponentSession), opts.TaskID)
	return &Recognizer{
		opts:       opts,
		audio:      r,
		logger:     logger,
		transcript: Transcript{TaskID: opts.TaskID},
	}
}

// TaskID returns the identifier of the recognition task.
func (r *Recognizer) TaskID() string {
	return r.opts.TaskID
}

func (r *Recognizer) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *Recognizer) OnOpen(ctx context.Context, w session.Writer) {
	cmd := protocol.NewASRRunTask(r.opts.TaskID, r.opts.Model, r.opts.Params, r.opts.Resources...)
	if err := w.Send(cmd); err != nil {
		r.setErr(fmt.Errorf("send run-task: %w", err))
		w.Close()
		return
	}
	r.logger.Debug("recognition requested", "model", r.opts.Model)
}

func (r *Recognizer) OnEvent(ctx context.Context, w session.Writer, ev protocol.Event) {
	if protocol.TaskID(ev) != r.opts.TaskID {
		r.logger.Warn("ignoring event for another task", "other_task_id", protocol.TaskID(ev))
		return
	}

	switch ev := ev.(type) {
	case *protocol.TaskStarted:
		r.startStreaming(ctx, w)

	case *protocol.ResultGenerated:
		s := ev.Sentence()
		if s == nil || s.IsHeartbeat() {
			return
		}
		if r.opts.OnSentence != nil {
			r.opts.OnSentence(s)
		}
		if s.IsFinal() {
			r.transcript.Sentences = append(r.transcript.Sentences, *s)
		}

	case *protocol.TaskFinished:
		r.finished = true
		r.transcript.Usage = ev.Usage()
		w.Close()

	case *protocol.TaskFailed:
		r.finished = true
		r.setErr(ev.Err())
		w.Close()
	}
}

func (r *Recognizer) OnError(ctx context.Context, err error) {
	r.logger.Warn("recognition error", "error", err)
}

func (r *Recognizer) OnClose(ctx context.Context, code int, reason string) {
	r.logger.Debug("recognition session closed", "code", code, "reason", reason)
	r.stop()
}

// HeartbeatInterval implements session.HeartbeatProvider.
func (r *Recognizer) HeartbeatInterval() time.Duration {
	return r.opts.Heartbeat
}

func (r *Recognizer) startStreaming(ctx context.Context, w session.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.readDone = make(chan struct{})
	chunks := make(chan chunk)
	go r.read(ctx, chunks)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.stream(ctx, w, chunks); err != nil {
			r.setErr(err)
			w.Close()
		}
	}()
}

// chunk is one read from the audio source. err is io.EOF at the end of the
// audio.
type chunk struct {
	data []byte
	err  error
}

// read feeds the audio to out until the source ends or fails. It may stay
// blocked in Read after ctx is done; stop closes the source to release it.
func (r *Recognizer) read(ctx context.Context, out chan<- chunk) {
	defer close(r.readDone)
	for {
		buf := make([]byte, r.opts.ChunkSize)
		n, err := io.ReadFull(r.audio, buf)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		select {
		case out <- chunk{data: buf[:n], err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// stream sends the audio in paced chunks followed by finish-task.
func (r *Recognizer) stream(ctx context.Context, w session.Writer, chunks <-chan chunk) error {
	var limiter *rate.Limiter
	if r.opts.ChunkInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(r.opts.ChunkInterval), 1)
	}

	var sent int64
	for {
		var c chunk
		select {
		case <-ctx.Done():
			return nil
		case c = <-chunks:
		}

		if len(c.data) > 0 {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					// Session is over; nothing left to do.
					return nil
				}
			}
			if err := w.WriteBinary(c.data); err != nil {
				if r.done(ctx, w) {
					return nil
				}
				return fmt.Errorf("send audio: %w", err)
			}
			sent += int64(len(c.data))
		}
		if errors.Is(c.err, io.EOF) {
			break
		}
		if c.err != nil {
			return fmt.Errorf("read audio: %w", c.err)
		}
	}

	r.logger.Debug("audio sent", "bytes", sent)
	if err := w.Send(protocol.NewFinishTask(r.opts.TaskID)); err != nil && !r.done(ctx, w) {
		return fmt.Errorf("send finish-task: %w", err)
	}
	return nil
}

// done reports whether a failed write only means the session is over: the
// context ended or the task already reached its terminal event, after which
// the session is being closed.
func (r *Recognizer) done(ctx context.Context, w session.Writer) bool {
	return ctx.Err() != nil || w.TaskPhase(r.opts.TaskID).Ended()
}

// stop cancels streaming without waiting for it. A source still blocked in
// Read is closed if it is an io.Closer.
func (r *Recognizer) stop() {
	r.mu.Lock()
	cancel, readDone := r.cancel, r.readDone
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-readDone:
	default:
		if c, ok := r.audio.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.logger.Debug("closing audio source", "error", err)
			}
		}
	}
}

// Wait stops audio streaming and waits for the sender to finish. It does not
// wait for a read blocked on the audio source.
func (r *Recognizer) Wait() {
	r.stop()
	r.wg.Wait()
}

// Result returns the transcript and the first failure, if any: a task
// failure (*protocol.TaskError), an audio error, or ErrIncomplete.
func (r *Recognizer) Result() (*Transcript, error) {
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err == nil && !r.finished {
		err = ErrIncomplete
	}
	return &r.transcript, err
}

// Streamer runs a handler over a fresh inference session. *client.Client
// implements it.
type Streamer interface {
	Stream(ctx context.Context, h session.Handler, opts ...session.Option) error
}

// Recognize streams audio through a new session and returns the transcript.
func Recognize(ctx context.Context, s Streamer, audio io.Reader, opts Options) (*Transcript, error) {
	r := NewRecognizer(audio, opts)
	err := s.Stream(ctx, r)
	r.Wait()

	t, rerr := r.Result()
	if rerr != nil && !errors.Is(rerr, ErrIncomplete) {
		return t, rerr
	}
	if err != nil {
		return t, err
	}
	return t, rerr
}
