// Package protocol implements the wire format of the duplex inference
// protocol: outbound task commands and inbound task events.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Action is the header action of an outbound command.
type Action string

const (
	ActionRunTask      Action = "run-task"
	ActionContinueTask Action = "continue-task"
	ActionFinishTask   Action = "finish-task"
)

// StreamingDuplex is the only streaming mode spoken by this engine.
const StreamingDuplex = "duplex"

// TaskGroupAudio is the task group of speech tasks.
const TaskGroupAudio = "audio"

// TaskType identifies the task family.
type TaskType string

const (
	TaskASR TaskType = "asr"
	TaskTTS TaskType = "tts"
)

// TaskFunction is the function the task family performs.
type TaskFunction string

const (
	FunctionRecognition       TaskFunction = "recognition"
	FunctionSpeechSynthesizer TaskFunction = "SpeechSynthesizer"
)

// ErrSerialization is wrapped by errors returned when a command cannot be
// encoded. It indicates a programming error, never a retry condition.
var ErrSerialization = errors.New("serialization error")

// NewTaskID returns a fresh task identifier: a random UUID without dashes.
func NewTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Header is the header shared by every command.
type Header struct {
	Action    Action `json:"action"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming"`
}

// Command is an outbound instruction. Payload is one of *RunTaskPayload,
// *ContinueTaskPayload or *FinishTaskPayload.
type Command struct {
	Header  Header `json:"header"`
	Payload any    `json:"payload"`
}

// Resource references a server-side resource used by a task.
type Resource struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
}

// RunTaskPayload is the payload of a run-task command.
type RunTaskPayload struct {
	TaskGroup  string         `json:"task_group"`
	Task       TaskType       `json:"task"`
	Function   TaskFunction   `json:"function"`
	Model      string         `json:"model"`
	Input      map[string]any `json:"input"`
	Parameters any            `json:"parameters,omitempty"`
	Resources  []Resource     `json:"resources,omitempty"`
}

// ContinueInput carries incremental text for synthesis tasks.
type ContinueInput struct {
	Text string `json:"text"`
}

// ContinueTaskPayload is the payload of a continue-task command.
type ContinueTaskPayload struct {
	Input ContinueInput `json:"input"`
}

// FinishTaskPayload is the payload of a finish-task command. Its input is
// always the empty object.
type FinishTaskPayload struct {
	Input map[string]any `json:"input"`
}

// TaskSpec describes the task started by a run-task command.
type TaskSpec struct {
	Task       TaskType
	Function   TaskFunction
	Model      string
	Input      map[string]any
	Parameters any
	Resources  []Resource
}

// NewRunTask builds a run-task command for the given task.
func NewRunTask(taskID string, spec TaskSpec) Command {
	input := spec.Input
	if input == nil {
		input = map[string]any{}
	}
	return Command{
		Header: newHeader(ActionRunTask, taskID),
		Payload: &RunTaskPayload{
			TaskGroup:  TaskGroupAudio,
			Task:       spec.Task,
			Function:   spec.Function,
			Model:      spec.Model,
			Input:      input,
			Parameters: spec.Parameters,
			Resources:  spec.Resources,
		},
	}
}

// NewASRRunTask builds a run-task command for a recognition task.
func NewASRRunTask(taskID, model string, params RecognitionParams, resources ...Resource) Command {
	return NewRunTask(taskID, TaskSpec{
		Task:       TaskASR,
		Function:   FunctionRecognition,
		Model:      model,
		Parameters: params,
		Resources:  resources,
	})
}

// NewTTSRunTask builds a run-task command for a synthesis task.
func NewTTSRunTask(taskID, model string, params SynthesisParams) Command {
	if params.TextType == "" {
		params.TextType = TextTypePlain
	}
	return NewRunTask(taskID, TaskSpec{
		Task:       TaskTTS,
		Function:   FunctionSpeechSynthesizer,
		Model:      model,
		Parameters: params,
	})
}

// NewContinueTask builds a continue-task command carrying text.
func NewContinueTask(taskID, text string) Command {
	return Command{
		Header:  newHeader(ActionContinueTask, taskID),
		Payload: &ContinueTaskPayload{Input: ContinueInput{Text: text}},
	}
}

// NewFinishTask builds a finish-task command.
func NewFinishTask(taskID string) Command {
	return Command{
		Header:  newHeader(ActionFinishTask, taskID),
		Payload: &FinishTaskPayload{Input: map[string]any{}},
	}
}

func newHeader(action Action, taskID string) Header {
	return Header{Action: action, TaskID: taskID, Streaming: StreamingDuplex}
}

// Marshal encodes the command as a JSON text frame.
func (c Command) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s command: %v", ErrSerialization, c.Header.Action, err)
	}
	return data, nil
}
