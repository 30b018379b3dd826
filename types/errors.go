package types

import "fmt"

// Error codes for the negotiation engine taxonomy.
const (
	ErrCodeAgentTask         = "AGENT_TASK_FAILED"
	ErrCodeUnsupportedTask   = "UNSUPPORTED_TASK"
	ErrCodeProtocolViolation = "PROTOCOL_VIOLATION"
	ErrCodeCompletionParse   = "COMPLETION_PARSE_FAILURE"
	ErrCodeAgentTimeout      = "AGENT_TIMEOUT"
	ErrCodeCircuitOpen       = "AGENT_CIRCUIT_OPEN"
	ErrCodeOrchestration     = "ORCHESTRATION_FAILURE"
)

// TaskError describes a failed agent task. It is carried inside an
// ErrorReport envelope and never propagates as a panic or aborts a phase.
type TaskError struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Details   string   `json:"details,omitempty"`
	TaskKind  TaskKind `json:"task_kind,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
	cause     error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task error [%s] %s: %s", e.Code, e.TaskKind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TaskError) Unwrap() error {
	return e.cause
}

// NewTaskError creates a task error with the given code.
func NewTaskError(code string, kind TaskKind, message string, cause error) *TaskError {
	e := &TaskError{
		Code:     code,
		Message:  message,
		TaskKind: kind,
		cause:    cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewUnsupportedTaskError marks a contract violation: the agent was asked
// for a kind it never claimed. A programmer error, surfaced loudly in
// tests and as a zero-confidence ErrorReport in live orchestration.
func NewUnsupportedTaskError(agentID string, kind TaskKind) *TaskError {
	return &TaskError{
		Code:     ErrCodeUnsupportedTask,
		Message:  fmt.Sprintf("agent %s does not support task %q", agentID, kind),
		TaskKind: kind,
	}
}
