// Package event defines the wire vocabulary of the pipeline event stream and
// the interpreter that turns decoded payloads into store actions.
//
// The backend reports progress with a small set of typed events. The caller
// will typically not touch this package directly: the run loop decodes frames,
// calls Interpret and feeds the resulting actions to the stage store.
package event

import "encoding/json"

// Event types emitted by the pipeline backend.
const (
	TypeWorkflowStarted   = "workflow_started"
	TypeWorkflowSucceeded = "workflow_succeeded"
	TypeWorkflowFailed    = "workflow_failed"
	TypeSubstageStarted   = "substage_started"
	TypeSubstageCompleted = "substage_completed"
	TypeRunStarted        = "run_started"
	TypeRunSucceeded      = "run_succeeded"
	TypeRunFailed         = "run_failed"
	TypeComplete          = "complete"
)

// Status is the lifecycle state of a stage or substage.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	// StatusCompleted is emitted by some backend versions in place of
	// StatusSuccess. The two are equivalent terminal-success states.
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether s is a terminal state for the current run.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCompleted
}

// IsSuccess reports whether s is one of the terminal-success variants.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusCompleted
}

// TokenCost carries the usage metrics the backend attaches to a finished
// workflow stage. All fields default to zero when the event omits them.
type TokenCost struct {
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	TotalTokens   int64   `json:"totalTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// Payload is one decoded document from the event stream.
type Payload struct {
	Type     string          `json:"type"`
	Workflow string          `json:"workflow"`
	Substage string          `json:"substage"`
	Result   json.RawMessage `json:"result"`
	Error    json.RawMessage `json:"error"`
	Context  json.RawMessage `json:"context"`
}

// Action is a single update to apply to the stage store. Exactly one of the
// concrete action types is produced per recognized event.
type Action interface {
	isAction()
}

// StageAction updates the status of one stage and optionally attaches a
// result payload, token cost and server-reported duration.
type StageAction struct {
	StageID    string
	Status     Status
	Result     map[string]any
	TokenCost  *TokenCost
	DurationMS int64
	// HasDuration is set when the event carried an authoritative
	// server-side duration.
	HasDuration bool
}

func (StageAction) isAction() {}

// SubstageAction updates the status of one substage. It never touches the
// parent stage.
type SubstageAction struct {
	StageID    string
	SubstageID string
	Status     Status
}

func (SubstageAction) isAction() {}
