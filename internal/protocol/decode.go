package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEventKind is matched by errors for frames whose header.event
	// is absent or not one of the known kinds.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrMissingPayload is returned when an event kind that requires a
	// payload arrives without one.
	ErrMissingPayload = errors.New("event payload missing")

	// ErrMissingTaskID is returned when the header has no task_id.
	ErrMissingTaskID = errors.New("event task_id missing")
)

// UnknownEventKindError carries the unrecognized discriminant. Kind is empty
// when header.event was absent or not a string.
type UnknownEventKindError struct {
	Kind string
}

func (e *UnknownEventKindError) Error() string {
	if e.Kind == "" {
		return "unknown event kind: header.event missing"
	}
	return fmt.Sprintf("unknown event kind %q", e.Kind)
}

// Is makes errors.Is(err, ErrUnknownEventKind) hold.
func (e *UnknownEventKindError) Is(target error) bool {
	return target == ErrUnknownEventKind
}

// DecodeError is returned by Decode. Raw holds the offending frame.
type DecodeError struct {
	Kind EventKind
	Raw  []byte
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("decode event: %v", e.Err)
	}
	return fmt.Sprintf("decode %s event: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a text frame into an Event.
//
// The frame is parsed into a generic envelope first, then header.event
// selects the concrete shape the already-parsed header and payload are
// decoded into. Header-only kinds ignore any payload; payload kinds require
// one.
func Decode(frame []byte) (Event, error) {
	fail := func(kind EventKind, err error) (Event, error) {
		return nil, &DecodeError{Kind: kind, Raw: frame, Err: err}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return fail("", err)
	}

	kind, err := peekKind(envelope["header"])
	if err != nil {
		return fail("", err)
	}

	var header EventHeader
	if err := json.Unmarshal(envelope["header"], &header); err != nil {
		return fail(kind, fmt.Errorf("header: %w", err))
	}
	if header.TaskID == "" {
		return fail(kind, ErrMissingTaskID)
	}

	switch kind {
	case EventTaskStarted:
		return &TaskStarted{Header: header}, nil
	case EventTaskFailed:
		return &TaskFailed{Header: header}, nil
	case EventResultGenerated, EventTaskFinished:
		payload, err := decodePayload(envelope["payload"])
		if err != nil {
			return fail(kind, err)
		}
		if kind == EventResultGenerated {
			return &ResultGenerated{Header: header, Payload: payload}, nil
		}
		return &TaskFinished{Header: header, Payload: payload}, nil
	}
	// peekKind only returns known kinds.
	return fail(kind, &UnknownEventKindError{Kind: string(kind)})
}

func peekKind(rawHeader json.RawMessage) (EventKind, error) {
	if len(rawHeader) == 0 {
		return "", &UnknownEventKindError{}
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return "", fmt.Errorf("header: %w", err)
	}
	var name string
	if raw, ok := header["event"]; !ok || json.Unmarshal(raw, &name) != nil {
		return "", &UnknownEventKindError{}
	}
	switch kind := EventKind(name); kind {
	case EventTaskStarted, EventResultGenerated, EventTaskFinished, EventTaskFailed:
		return kind, nil
	}
	return "", &UnknownEventKindError{Kind: name}
}

func decodePayload(raw json.RawMessage) (EventPayload, error) {
	var payload EventPayload
	if len(raw) == 0 || string(raw) == "null" {
		return payload, ErrMissingPayload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("payload: %w", err)
	}
	return payload, nil
}

type headerOnlyFrame struct {
	Header EventHeader `json:"header"`
}

type payloadFrame struct {
	Header  EventHeader  `json:"header"`
	Payload EventPayload `json:"payload"`
}

// Encode serializes an event in wire form. The header's event field is set
// from the variant.
func Encode(e Event) ([]byte, error) {
	header := e.EventHeader()
	header.Event = e.Kind()

	var v any
	switch ev := e.(type) {
	case *TaskStarted, *TaskFailed:
		v = headerOnlyFrame{Header: header}
	case *ResultGenerated:
		v = payloadFrame{Header: header, Payload: ev.Payload}
	case *TaskFinished:
		v = payloadFrame{Header: header, Payload: ev.Payload}
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", ErrSerialization, e)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s event: %v", ErrSerialization, header.Event, err)
	}
	return data, nil
}
