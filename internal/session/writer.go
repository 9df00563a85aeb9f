package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/transport"
)

var (
	// ErrTaskNotStarted rejects continue-task or finish-task before the
	// task-started event.
	ErrTaskNotStarted = errors.New("task not started")
	// ErrTaskEnded rejects commands for a task that already finished or
	// failed.
	ErrTaskEnded = errors.New("task already ended")
	// ErrDuplicateTask rejects a second run-task for a task id already sent.
	ErrDuplicateTask = errors.New("task already requested")
	// ErrEventAfterTerminal reports an event for a task after its terminal
	// event. Such events are not delivered.
	ErrEventAfterTerminal = errors.New("event after terminal event")
)

// Phase is the observed state of one task.
type Phase int

const (
	PhaseUnknown Phase = iota
	// PhaseRequested means run-task was sent and task-started not yet seen.
	PhaseRequested
	PhaseStarted
	PhaseFinished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseRequested:
		return "requested"
	case PhaseStarted:
		return "started"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ended reports whether the task reached a terminal event.
func (p Phase) Ended() bool {
	return p == PhaseFinished || p == PhaseFailed
}

// Writer is the outbound side handed to hooks. It may be retained and used
// from other goroutines until Call returns; writes are serialized.
type Writer interface {
	// Send marshals and sends a command.
	Send(cmd protocol.Command) error
	// WriteBinary sends a binary frame, e.g. an audio chunk.
	WriteBinary(data []byte) error
	// Close starts a normal closing handshake.
	Close() error
	// TaskPhase returns the observed phase of a task.
	TaskPhase(taskID string) Phase
}

// tracker follows each task through its phases.
type tracker struct {
	mu     sync.Mutex
	phases map[string]Phase
}

func newTracker() *tracker {
	return &tracker{phases: make(map[string]Phase)}
}

func (t *tracker) phase(taskID string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phases[taskID]
}

// check validates cmd against the task's phase.
func (t *tracker) check(cmd protocol.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := cmd.Header.TaskID
	phase := t.phases[id]
	switch cmd.Header.Action {
	case protocol.ActionRunTask:
		switch {
		case phase.Ended():
			return fmt.Errorf("%w: run-task for %s in phase %s", ErrTaskEnded, id, phase)
		case phase != PhaseUnknown:
			return fmt.Errorf("%w: run-task for %s in phase %s", ErrDuplicateTask, id, phase)
		}
	case protocol.ActionContinueTask, protocol.ActionFinishTask:
		switch {
		case phase.Ended():
			return fmt.Errorf("%w: %s for %s in phase %s", ErrTaskEnded, cmd.Header.Action, id, phase)
		case phase != PhaseStarted:
			return fmt.Errorf("%w: %s for %s in phase %s", ErrTaskNotStarted, cmd.Header.Action, id, phase)
		}
	}
	return nil
}

// sent records a run-task that reached the connection. A failed write leaves
// the task unknown so it can be retried.
func (t *tracker) sent(cmd protocol.Command) {
	if cmd.Header.Action != protocol.ActionRunTask {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phases[cmd.Header.TaskID] == PhaseUnknown {
		t.phases[cmd.Header.TaskID] = PhaseRequested
	}
}

// observe advances the task's phase for ev. It fails when the task already
// ended.
func (t *tracker) observe(ev protocol.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := protocol.TaskID(ev)
	phase := t.phases[id]
	if phase.Ended() {
		return fmt.Errorf("%w: %s for %s in phase %s", ErrEventAfterTerminal, ev.Kind(), id, phase)
	}
	switch ev.Kind() {
	case protocol.EventTaskStarted:
		t.phases[id] = PhaseStarted
	case protocol.EventResultGenerated:
		// Results imply the task is running even if task-started was missed.
		t.phases[id] = PhaseStarted
	case protocol.EventTaskFinished:
		t.phases[id] = PhaseFinished
	case protocol.EventTaskFailed:
		t.phases[id] = PhaseFailed
	}
	return nil
}

// writer is the Writer handed to hooks.
type writer struct {
	sender *transport.Sender
	tasks  *tracker
	strict bool
	logger *slog.Logger
}

func (w *writer) Send(cmd protocol.Command) error {
	data, err := cmd.Marshal()
	if err != nil {
		return err
	}
	if err := w.tasks.check(cmd); err != nil {
		if w.strict {
			return err
		}
		w.logger.Warn("sending out of order command", "error", err)
	}
	w.logger.Debug("sending command", "action", cmd.Header.Action, "task_id", cmd.Header.TaskID)
	if err := w.sender.WriteText(data); err != nil {
		return err
	}
	w.tasks.sent(cmd)
	return nil
}

func (w *writer) WriteBinary(data []byte) error {
	return w.sender.WriteBinary(data)
}

func (w *writer) Close() error {
	return w.sender.WriteClose(websocket.CloseNormalClosure, "")
}

func (w *writer) TaskPhase(taskID string) Phase {
	return w.tasks.phase(taskID)
}
