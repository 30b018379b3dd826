package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope exchanged between the
// orchestrator and its agents.
type MessageType string

const (
	MessageTaskRequest       MessageType = "task_request"
	MessageTaskResult        MessageType = "task_result"
	MessageStatusUpdate      MessageType = "status_update"
	MessageErrorReport       MessageType = "error_report"
	MessageEvaluationRequest MessageType = "evaluation_request"
	MessageEvaluationResult  MessageType = "evaluation_result"
)

// Priority of a task request.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TaskKind names an operation an agent can perform. The set is closed:
// every kind here is claimed by exactly one specialized agent.
type TaskKind string

const (
	TaskAnalyzeContext    TaskKind = "analyze_context"
	TaskAnalyzeMessage    TaskKind = "analyze_message"
	TaskSentimentAnalysis TaskKind = "sentiment_analysis"
	TaskUrgencyAssessment TaskKind = "urgency_assessment"
	TaskAssessRisks       TaskKind = "assess_risks"
	TaskPlanStrategy      TaskKind = "plan_strategy"
	TaskCalculatePricing  TaskKind = "calculate_pricing"
	TaskGenerateResponse  TaskKind = "generate_response"
	TaskCreateVariations  TaskKind = "create_variations"
)

// KnownTaskKinds lists every task kind the engine dispatches.
var KnownTaskKinds = []TaskKind{
	TaskAnalyzeContext,
	TaskAnalyzeMessage,
	TaskSentimentAnalysis,
	TaskUrgencyAssessment,
	TaskAssessRisks,
	TaskPlanStrategy,
	TaskCalculatePricing,
	TaskGenerateResponse,
	TaskCreateVariations,
}

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	for _, known := range KnownTaskKinds {
		if k == known {
			return true
		}
	}
	return false
}

// AgentMessage is the typed envelope for inter-agent requests, results
// and errors. Every TaskResult/ErrorReport carries the correlation id of
// its originating TaskRequest and references it via ParentMessageID.
type AgentMessage struct {
	ID              string      `json:"id"`
	SenderID        string      `json:"sender_id"`
	RecipientID     string      `json:"recipient_id"`
	Type            MessageType `json:"type"`
	TaskKind        TaskKind    `json:"task_kind,omitempty"`
	Payload         TaskPayload `json:"payload,omitempty"`
	Confidence      float64     `json:"confidence"`
	Priority        Priority    `json:"priority"`
	Timestamp       time.Time   `json:"timestamp"`
	CorrelationID   string      `json:"correlation_id"`
	ParentMessageID string      `json:"parent_message_id,omitempty"`
	RetryCount      int         `json:"retry_count"`
	MaxRetries      int         `json:"max_retries"`
	LatencyMs       int64       `json:"latency_ms,omitempty"`
	Error           *TaskError  `json:"error,omitempty"`
}

// NewTaskRequest builds a task request envelope. A correlation id is
// generated when none is supplied. Construction never fails.
func NewTaskRequest(sender, recipient string, kind TaskKind, payload TaskPayload, priority Priority, correlationID string) *AgentMessage {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return &AgentMessage{
		ID:            uuid.New().String(),
		SenderID:      sender,
		RecipientID:   recipient,
		Type:          MessageTaskRequest,
		TaskKind:      kind,
		Payload:       payload,
		Priority:      priority,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		MaxRetries:    2,
	}
}

// NewTaskResult builds a result envelope tied to its originating request.
func NewTaskResult(sender, recipient string, kind TaskKind, payload TaskPayload, confidence float64, parentID, correlationID string, latencyMs int64) *AgentMessage {
	return &AgentMessage{
		ID:              uuid.New().String(),
		SenderID:        sender,
		RecipientID:     recipient,
		Type:            MessageTaskResult,
		TaskKind:        kind,
		Payload:         payload,
		Confidence:      ClampConfidence(confidence),
		Timestamp:       time.Now(),
		CorrelationID:   correlationID,
		ParentMessageID: parentID,
		LatencyMs:       latencyMs,
	}
}

// NewErrorReport builds an error envelope. Confidence is always zero.
func NewErrorReport(sender, recipient string, taskErr *TaskError, parentID, correlationID string) *AgentMessage {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	msg := &AgentMessage{
		ID:              uuid.New().String(),
		SenderID:        sender,
		RecipientID:     recipient,
		Type:            MessageErrorReport,
		Timestamp:       time.Now(),
		CorrelationID:   correlationID,
		ParentMessageID: parentID,
		Error:           taskErr,
	}
	if taskErr != nil {
		msg.TaskKind = taskErr.TaskKind
		msg.LatencyMs = taskErr.ElapsedMs
	}
	return msg
}

// UnmarshalJSON decodes the payload into the concrete type implied by the
// envelope's message type and task kind, so persisted state round-trips
// without losing payload typing.
func (m *AgentMessage) UnmarshalJSON(data []byte) error {
	type alias AgentMessage
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return nil
	}
	payload := emptyPayloadFor(m.Type, m.TaskKind)
	if payload == nil {
		return nil
	}
	if err := json.Unmarshal(aux.Payload, payload); err != nil {
		return err
	}
	m.Payload = payload
	return nil
}

func emptyPayloadFor(t MessageType, kind TaskKind) TaskPayload {
	if t == MessageTaskRequest || t == MessageEvaluationRequest {
		return &TaskInput{}
	}
	switch kind {
	case TaskAnalyzeContext:
		return &ContextResult{}
	case TaskAnalyzeMessage, TaskSentimentAnalysis, TaskUrgencyAssessment:
		return &AnalysisResult{}
	case TaskAssessRisks:
		return &RiskResult{}
	case TaskPlanStrategy:
		return &StrategyResult{}
	case TaskCalculatePricing:
		return &PricingResult{}
	case TaskGenerateResponse:
		return &ResponseResult{}
	case TaskCreateVariations:
		return &VariationsResult{}
	default:
		return nil
	}
}

// IsResult reports whether the message carries a usable agent result.
func (m *AgentMessage) IsResult() bool {
	return m != nil && (m.Type == MessageTaskResult || m.Type == MessageEvaluationResult)
}

// ClampConfidence forces a confidence score into [0,1]. Out-of-range
// values are clamped, never propagated raw.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
