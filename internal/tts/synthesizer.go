// Package tts drives streaming speech synthesis: text goes out as
// continue-task commands and audio comes back as binary frames.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/session"
)

const (
	DefaultModel      = "cosyvoice-v2"
	DefaultVoice      = "longxiaochun_v2"
	DefaultFormat     = "mp3"
	DefaultSampleRate = 22050
)

var (
	// ErrNoText is returned when there is nothing to synthesize.
	ErrNoText = errors.New("no text to synthesize")
	// ErrIncomplete is returned when the session ended before a terminal
	// event.
	ErrIncomplete = errors.New("synthesis ended before the task finished")
)

// Options configures a synthesis.
type Options struct {
	// Model defaults to DefaultModel.
	Model string
	// Params.Voice, Format and SampleRate fall back to the package defaults.
	Params protocol.SynthesisParams

	// TaskID defaults to a fresh protocol.NewTaskID.
	TaskID string

	// Heartbeat is the keep-alive ping interval. Zero disables pings.
	Heartbeat time.Duration

	Logger *slog.Logger
}

// Result summarizes a synthesis.
type Result struct {
	TaskID string
	// Bytes is the amount of audio written.
	Bytes int64
	// Frames is the number of audio frames received.
	Frames int
	Usage  *protocol.Usage
}

// Synthesizer is a session.Handler that sends run-task on open, one
// continue-task per text segment once the task has started, then
// finish-task. Audio frames are written to the output as they arrive. The
// session is closed on the task's terminal event or on a write failure.
type Synthesizer struct {
	opts   Options
	texts  []string
	out    io.Writer
	logger *slog.Logger

	result   Result
	finished bool
	err      error
}

// NewSynthesizer creates a synthesizer writing audio to out.
func NewSynthesizer(texts []string, out io.Writer, opts Options) *Synthesizer {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Params.Voice == "" {
		opts.Params.Voice = DefaultVoice
	}
	if opts.Params.Format == "" {
		opts.Params.Format = DefaultFormat
	}
	if opts.Params.SampleRate == 0 {
		opts.Params.SampleRate = DefaultSampleRate
	}
	if opts.TaskID == "" {
		opts.TaskID = protocol.NewTaskID()
	}
	return &Synthesizer{
		opts:   opts,
		texts:  texts,
		out:    out,
		logger: logging.WithTask(logging.OrDefault(opts.Logger, logging.ComponentSession), opts.TaskID),
		result: Result{TaskID: opts.TaskID},
	}
}

func (s *Synthesizer) fail(w session.Writer, err error) {
	if s.err == nil {
		s.err = err
	}
	w.Close()
}

func (s *Synthesizer) OnOpen(ctx context.Context, w session.Writer) {
	if err := w.Send(protocol.NewTTSRunTask(s.opts.TaskID, s.opts.Model, s.opts.Params)); err != nil {
		s.fail(w, fmt.Errorf("send run-task: %w", err))
	}
}

func (s *Synthesizer) OnEvent(ctx context.Context, w session.Writer, ev protocol.Event) {
	if protocol.TaskID(ev) != s.opts.TaskID {
		s.logger.Warn("ignoring event for another task", "other_task_id", protocol.TaskID(ev))
		return
	}

	switch ev := ev.(type) {
	case *protocol.TaskStarted:
		for i, text := range s.texts {
			if err := w.Send(protocol.NewContinueTask(s.opts.TaskID, text)); err != nil {
				s.fail(w, fmt.Errorf("send text segment %d: %w", i, err))
				return
			}
		}
		if err := w.Send(protocol.NewFinishTask(s.opts.TaskID)); err != nil {
			s.fail(w, fmt.Errorf("send finish-task: %w", err))
		}

	case *protocol.ResultGenerated:
		if u := ev.Usage(); u != nil {
			s.result.Usage = u
		}

	case *protocol.TaskFinished:
		s.finished = true
		if u := ev.Usage(); u != nil {
			s.result.Usage = u
		}
		w.Close()

	case *protocol.TaskFailed:
		s.finished = true
		s.fail(w, ev.Err())
	}
}

// OnData implements session.DataHandler.
func (s *Synthesizer) OnData(ctx context.Context, w session.Writer, data []byte) {
	if s.err != nil {
		return
	}
	n, err := s.out.Write(data)
	s.result.Bytes += int64(n)
	s.result.Frames++
	if err != nil {
		s.fail(w, fmt.Errorf("write audio: %w", err))
	}
}

func (s *Synthesizer) OnError(ctx context.Context, err error) {
	s.logger.Warn("synthesis error", "error", err)
}

func (s *Synthesizer) OnClose(ctx context.Context, code int, reason string) {
	s.logger.Debug("synthesis session closed", "code", code, "reason", reason, "bytes", s.result.Bytes)
}

// HeartbeatInterval implements session.HeartbeatProvider.
func (s *Synthesizer) HeartbeatInterval() time.Duration {
	return s.opts.Heartbeat
}

// Result returns the summary and the first failure, if any.
func (s *Synthesizer) Result() (*Result, error) {
	err := s.err
	if err == nil && !s.finished {
		err = ErrIncomplete
	}
	return &s.result, err
}

// Streamer runs a handler over a fresh inference session. *client.Client
// implements it.
type Streamer interface {
	Stream(ctx context.Context, h session.Handler, opts ...session.Option) error
}

// Synthesize speaks texts through a new session, writing the audio to out.
// Empty segments are skipped.
func Synthesize(ctx context.Context, st Streamer, texts []string, out io.Writer, opts Options) (*Result, error) {
	var segments []string
	for _, t := range texts {
		if t != "" {
			segments = append(segments, t)
		}
	}
	if len(segments) == 0 {
		return nil, ErrNoText
	}

	s := NewSynthesizer(segments, out, opts)
	err := st.Stream(ctx, s)

	res, rerr := s.Result()
	if rerr != nil && !errors.Is(rerr, ErrIncomplete) {
		return res, rerr
	}
	if err != nil {
		return res, err
	}
	return res, rerr
}
