package session

import (
	"errors"
	"testing"

	"github.com/inercia/inferstream/internal/protocol"
)

func TestTracker_Phases(t *testing.T) {
	tr := newTracker()

	if err := tr.check(protocol.NewFinishTask("t1")); !errors.Is(err, ErrTaskNotStarted) {
		t.Errorf("finish before run = %v, want ErrTaskNotStarted", err)
	}
	run := protocol.NewRunTask("t1", protocol.TaskSpec{Task: protocol.TaskTTS})
	if err := tr.check(run); err != nil {
		t.Fatalf("run-task error = %v", err)
	}
	if got := tr.phase("t1"); got != PhaseUnknown {
		t.Errorf("phase before send = %s, want unknown", got)
	}
	tr.sent(run)
	if err := tr.check(run); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("second run-task = %v, want ErrDuplicateTask", err)
	}
	if got := tr.phase("t1"); got != PhaseRequested {
		t.Errorf("phase = %s, want requested", got)
	}
	if err := tr.check(protocol.NewContinueTask("t1", "x")); !errors.Is(err, ErrTaskNotStarted) {
		t.Errorf("continue before started = %v, want ErrTaskNotStarted", err)
	}

	if err := tr.observe(&protocol.TaskStarted{Header: protocol.EventHeader{TaskID: "t1"}}); err != nil {
		t.Fatalf("observe(started) error = %v", err)
	}
	if err := tr.check(protocol.NewContinueTask("t1", "x")); err != nil {
		t.Errorf("continue after started = %v", err)
	}

	if err := tr.observe(&protocol.TaskFailed{Header: protocol.EventHeader{TaskID: "t1"}}); err != nil {
		t.Fatalf("observe(failed) error = %v", err)
	}
	if got := tr.phase("t1"); got != PhaseFailed || !got.Ended() {
		t.Errorf("phase = %s, want failed", got)
	}
	if err := tr.check(protocol.NewFinishTask("t1")); !errors.Is(err, ErrTaskEnded) {
		t.Errorf("finish after failed = %v, want ErrTaskEnded", err)
	}
	if err := tr.check(run); !errors.Is(err, ErrTaskEnded) {
		t.Errorf("run-task after failed = %v, want ErrTaskEnded", err)
	}
	if err := tr.observe(&protocol.TaskStarted{Header: protocol.EventHeader{TaskID: "t1"}}); !errors.Is(err, ErrEventAfterTerminal) {
		t.Errorf("event after failed = %v, want ErrEventAfterTerminal", err)
	}

	// Other tasks are independent.
	if got := tr.phase("t2"); got != PhaseUnknown {
		t.Errorf("phase(t2) = %s, want unknown", got)
	}
}

func TestState_String(t *testing.T) {
	if StateDraining.String() != "draining" || State(99).String() != "State(99)" {
		t.Errorf("String() = %q, %q", StateDraining.String(), State(99).String())
	}
}
