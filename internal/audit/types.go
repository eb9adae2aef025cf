package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Run events
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunAborted   EventType = "run.aborted"

	// Module events
	EventModuleDetected   EventType = "module.detected"
	EventModuleRemediated EventType = "module.remediated"
	EventModuleVerified   EventType = "module.verified"
	EventModuleReported   EventType = "module.reported"
	EventModuleSkipped    EventType = "module.skipped"
	EventModuleFailed     EventType = "module.failed"

	// Gate events
	EventSafetyGateDenied EventType = "safety.gate_denied"
	EventSafetyGateForced EventType = "safety.gate_forced"
	EventQuotaExhausted   EventType = "quota.exhausted"

	// Configuration events
	EventConfigLoaded    EventType = "config.loaded"
	EventConfigDefaulted EventType = "config.defaulted"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess   Result = "success"
	ResultFailure   Result = "failure"
	ResultPending   Result = "pending"
	ResultDenied    Result = "denied"
	ResultPostponed Result = "postponed"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Subject
	Module string `json:"module,omitempty"`
	Action string `json:"action,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the run ID the event belongs to
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithModule sets the fault module
func (e *Event) WithModule(name string) *Event {
	e.Module = name
	return e
}

// WithAction sets the action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
