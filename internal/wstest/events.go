package wstest

import (
	"github.com/inercia/inferstream/internal/protocol"
)

// Started builds a task-started event.
func Started(taskID string) *protocol.TaskStarted {
	return &protocol.TaskStarted{Header: protocol.EventHeader{TaskID: taskID, Event: protocol.EventTaskStarted}}
}

// Result builds a result-generated event carrying one sentence. A final
// sentence gets an end time and sentence_end.
func Result(taskID string, begin int64, end int64, text string, final bool) *protocol.ResultGenerated {
	s := &protocol.Sentence{BeginTime: protocol.Int(begin), Text: text, SentenceEnd: protocol.Bool(final)}
	if final {
		s.EndTime = protocol.IntPtr(end)
	}
	return &protocol.ResultGenerated{
		Header:  protocol.EventHeader{TaskID: taskID, Event: protocol.EventResultGenerated},
		Payload: protocol.EventPayload{Output: &protocol.Output{Sentence: s}},
	}
}

// Finished builds a task-finished event.
func Finished(taskID string, usage *protocol.Usage) *protocol.TaskFinished {
	return &protocol.TaskFinished{
		Header:  protocol.EventHeader{TaskID: taskID, Event: protocol.EventTaskFinished},
		Payload: protocol.EventPayload{Output: &protocol.Output{}, Usage: usage},
	}
}

// Failed builds a task-failed event.
func Failed(taskID, code, message string) *protocol.TaskFailed {
	return &protocol.TaskFailed{Header: protocol.EventHeader{
		TaskID:       taskID,
		Event:        protocol.EventTaskFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	}}
}
