package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind is the discriminant of an inbound event (header.event).
type EventKind string

const (
	EventTaskStarted     EventKind = "task-started"
	EventResultGenerated EventKind = "result-generated"
	EventTaskFinished    EventKind = "task-finished"
	EventTaskFailed      EventKind = "task-failed"
)

// Terminal reports whether no further events follow this kind for a task.
func (k EventKind) Terminal() bool {
	return k == EventTaskFinished || k == EventTaskFailed
}

// EventHeader is the header carried by every event.
type EventHeader struct {
	TaskID string    `json:"task_id"`
	Event  EventKind `json:"event"`
	// Attributes is passed through untouched.
	Attributes   json.RawMessage `json:"attributes,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// EventPayload is the payload of result-generated and task-finished events.
type EventPayload struct {
	Output *Output `json:"output,omitempty"`
	Usage  *Usage  `json:"usage,omitempty"`
}

// Output is the incremental task output.
type Output struct {
	Sentence *Sentence `json:"sentence,omitempty"`
}

// Sentence is one recognized (or synthesized) sentence. EndTime is nil
// while the sentence is still intermediate.
type Sentence struct {
	BeginTime     Int      `json:"begin_time"`
	EndTime       *Int     `json:"end_time"`
	Text          string   `json:"text"`
	Words         []Word   `json:"words,omitempty"`
	Heartbeat     *Bool    `json:"heartbeat,omitempty"`
	SentenceEnd   Bool     `json:"sentence_end"`
	EmoTag        string   `json:"emo_tag,omitempty"`
	EmoConfidence *float64 `json:"emo_confidence,omitempty"`
}

// IsFinal reports whether the sentence has an end time.
func (s *Sentence) IsFinal() bool {
	return s.EndTime != nil
}

// IsHeartbeat reports whether the service marked the result as a keep-alive
// that carries no recognition output.
func (s *Sentence) IsHeartbeat() bool {
	return s.Heartbeat != nil && bool(*s.Heartbeat)
}

// Duration returns the sentence length in milliseconds, or 0 when the
// sentence is intermediate or the times are inconsistent.
func (s *Sentence) Duration() int64 {
	if s.EndTime == nil || *s.EndTime <= s.BeginTime {
		return 0
	}
	return int64(*s.EndTime - s.BeginTime)
}

// Word is a word-level timestamp.
type Word struct {
	BeginTime   Int    `json:"begin_time"`
	EndTime     Int    `json:"end_time"`
	Text        string `json:"text"`
	Punctuation string `json:"punctuation"`
}

// Usage holds billing counters. Recognition tasks report Duration (seconds),
// synthesis tasks report Characters.
type Usage struct {
	Duration   *Int `json:"duration,omitempty"`
	Characters *Int `json:"characters,omitempty"`
}

// Event is one of *TaskStarted, *ResultGenerated, *TaskFinished or
// *TaskFailed.
type Event interface {
	Kind() EventKind
	EventHeader() EventHeader
	isEvent()
}

// TaskStarted acknowledges a run-task command.
type TaskStarted struct {
	Header EventHeader
}

// ResultGenerated carries incremental output.
type ResultGenerated struct {
	Header  EventHeader
	Payload EventPayload
}

// TaskFinished is the terminal success event, carrying final usage.
type TaskFinished struct {
	Header  EventHeader
	Payload EventPayload
}

// TaskFailed is the terminal failure event.
type TaskFailed struct {
	Header EventHeader
}

func (*TaskStarted) Kind() EventKind     { return EventTaskStarted }
func (*ResultGenerated) Kind() EventKind { return EventResultGenerated }
func (*TaskFinished) Kind() EventKind    { return EventTaskFinished }
func (*TaskFailed) Kind() EventKind      { return EventTaskFailed }

func (e *TaskStarted) EventHeader() EventHeader     { return e.Header }
func (e *ResultGenerated) EventHeader() EventHeader { return e.Header }
func (e *TaskFinished) EventHeader() EventHeader    { return e.Header }
func (e *TaskFailed) EventHeader() EventHeader      { return e.Header }

func (*TaskStarted) isEvent()     {}
func (*ResultGenerated) isEvent() {}
func (*TaskFinished) isEvent()    {}
func (*TaskFailed) isEvent()      {}

// Sentence returns the sentence of the result, if any.
func (e *ResultGenerated) Sentence() *Sentence {
	if e.Payload.Output == nil {
		return nil
	}
	return e.Payload.Output.Sentence
}

// Usage returns the usage counters of the result, if any.
func (e *ResultGenerated) Usage() *Usage { return e.Payload.Usage }

// Usage returns the final usage counters, if any.
func (e *TaskFinished) Usage() *Usage { return e.Payload.Usage }

// TaskError describes a task-failed event as an error.
type TaskError struct {
	TaskID  string
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s: %s", e.TaskID, e.Code, e.Message)
}

// Err returns the failure as a *TaskError.
func (e *TaskFailed) Err() error {
	return &TaskError{
		TaskID:  e.Header.TaskID,
		Code:    e.Header.ErrorCode,
		Message: e.Header.ErrorMessage,
	}
}

// TaskID returns the task identifier of any event.
func TaskID(e Event) string {
	return e.EventHeader().TaskID
}
