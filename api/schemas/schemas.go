package schemas

import "time"

// Severity ranks how bad an anomaly is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AnomalyCategory classifies the invariant that fired.
type AnomalyCategory string

const (
	CategoryAPIError           AnomalyCategory = "API_ERROR"
	CategoryInvariantViolation AnomalyCategory = "INVARIANT_VIOLATION"
	CategoryConsoleError       AnomalyCategory = "CONSOLE_ERROR"
	CategoryRouteMismatch      AnomalyCategory = "ROUTE_MISMATCH"
)

// ActionBrowserBack is the synthetic backtrack action. It is always legal,
// regardless of the current state's available_actions.
const ActionBrowserBack = "BROWSER_BACK"

// ElementRole is the interaction kind of a discovered element.
type ElementRole string

const (
	RoleButton   ElementRole = "button"
	RoleLink     ElementRole = "link"
	RoleInput    ElementRole = "input"
	RoleTextarea ElementRole = "textarea"
	RoleSelect   ElementRole = "select"
	RoleCheckbox ElementRole = "checkbox"
	RoleRadio    ElementRole = "radio"
)

// RawElement is a single interactive element as reported by the browser
// driver, before fingerprinting normalizes it into an action id.
type RawElement struct {
	Role         ElementRole `json:"role"`
	Label        string      `json:"label"`
	ViewportSafe bool        `json:"viewport_safe"`
	InModal      bool        `json:"in_modal"`
	InputType    string      `json:"input_type,omitempty"`
	Options      []string    `json:"options,omitempty"`
}

// UIState is an immutable fingerprint of the page at one point in time.
// A fresh UIState supersedes the previous one each step; nothing mutates it.
type UIState struct {
	StateID          string            `json:"state_id"`
	Route            string            `json:"route"`
	Title            string            `json:"title"`
	AvailableActions []string          `json:"available_actions"`
	Entities         map[string]string `json:"entities,omitempty"`
}

// ActionContract is what the decision engine hands to the executor.
type ActionContract struct {
	ActionID   string            `json:"action_id"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// NetworkCall is one backend response observed during an action window.
type NetworkCall struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// Observation is the executor's account of what one action did.
// Skipped marks a failed or no-op execution; the run continues either way.
type Observation struct {
	ActionID      string        `json:"action_id"`
	NetworkCalls  []NetworkCall `json:"network_calls"`
	ConsoleErrors []string      `json:"console_errors"`
	ScreenshotRef string        `json:"screenshot_ref,omitempty"`
	Skipped       bool          `json:"skipped"`
}

// AnomalyReport records one invariant violation for one step.
type AnomalyReport struct {
	Severity    Severity          `json:"severity"`
	Category    AnomalyCategory   `json:"category"`
	ActionID    string            `json:"action_id"`
	Description string            `json:"description"`
	Evidence    map[string]string `json:"evidence,omitempty"`
}

// ControlSignal tells the orchestrator whether to keep going.
type ControlSignal string

const (
	ControlContinue  ControlSignal = "CONTINUE"
	ControlTerminate ControlSignal = "TERMINATE"
)

// Decision is the decision engine's output for one step.
type Decision struct {
	NextAction *ActionContract `json:"next_action"`
	Control    ControlSignal   `json:"control"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	// FromKnowledgeID is set when the action was taken from a stored memory,
	// so the learner can reinforce that exact item.
	FromKnowledgeID string `json:"from_knowledge_id,omitempty"`
}

// AgentStep is one append-only entry in the run trace.
type AgentStep struct {
	StepIndex   int             `json:"step_index"`
	Action      ActionContract  `json:"action"`
	Observation Observation     `json:"observation"`
	StateID     string          `json:"state_id"`
	Reasoning   string          `json:"reasoning,omitempty"`
	Anomalies   []AnomalyReport `json:"anomalies,omitempty"`
}

// RunState is the aggregate a run accumulates: the current UI state, the
// append-only step trace, and the circuit-breaker counters. It is owned
// exclusively by the orchestrator; other components read it and return
// deltas instead of mutating it.
type RunState struct {
	RunID               string      `json:"run_id"`
	TargetURL           string      `json:"target_url"`
	Current             UIState     `json:"current_state"`
	Steps               []AgentStep `json:"steps"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	NoActionSteps       int         `json:"no_action_steps"`
}

// LastStep returns the most recent trace entry, or nil before the first
// action.
func (r *RunState) LastStep() *AgentStep {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[len(r.Steps)-1]
}

// TriedActions collects every action id already executed from the given
// state in this run.
func (r *RunState) TriedActions(stateID string) map[string]bool {
	tried := make(map[string]bool)
	for _, step := range r.Steps {
		if step.StateID == stateID {
			tried[step.Action.ActionID] = true
		}
	}
	return tried
}

// BacktrackAttempted reports whether BROWSER_BACK was already issued from
// the given state in this run.
func (r *RunState) BacktrackAttempted(stateID string) bool {
	for _, step := range r.Steps {
		if step.StateID == stateID && step.Action.ActionID == ActionBrowserBack {
			return true
		}
	}
	return false
}

// RunStatus is the terminal state of a run summary.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary is the run-level record emitted to the persistence store.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	TargetURL   string    `json:"target_url"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Status      RunStatus `json:"status"`
	TotalSteps  int       `json:"total_steps"`
	Failures    int       `json:"failures"`
	Anomalies   int       `json:"anomalies"`
}

// KnowledgeType tags what kind of memory a KnowledgeItem holds.
type KnowledgeType string

const (
	KnowledgeError       KnowledgeType = "error"
	KnowledgeFix         KnowledgeType = "fix"
	KnowledgeFlow        KnowledgeType = "flow"
	KnowledgePattern     KnowledgeType = "pattern"
	KnowledgeExploration KnowledgeType = "exploration"
	KnowledgeObservation KnowledgeType = "observation"
	KnowledgeRoute       KnowledgeType = "route"
	KnowledgeMetric      KnowledgeType = "metric"
)

// Outcome records whether applying a memory worked.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// KnowledgeItem is one confidence-scored memory in the vector store.
// Counters and confidence are mutated in place by reinforcement; items are
// never deleted by the agent (retention is store policy).
type KnowledgeItem struct {
	ID             string            `json:"id,omitempty"`
	Type           KnowledgeType     `json:"type"`
	Content        string            `json:"content"`
	RunID          string            `json:"run_id"`
	ErrorSignature string            `json:"error_signature,omitempty"`
	RootCause      string            `json:"root_cause,omitempty"`
	Solution       string            `json:"solution,omitempty"`
	Outcome        Outcome           `json:"outcome,omitempty"`
	Confidence     float64           `json:"confidence"`
	SuccessCount   int               `json:"success_count"`
	FailureCount   int               `json:"failure_count"`
	UsageCount     int               `json:"usage_count"`
	LastUsed       int64             `json:"last_used,omitempty"` // unix millis
	CreatedAt      int64             `json:"created_at,omitempty"`
	Score          float64           `json:"score,omitempty"` // similarity, set on search hits
	Metadata       map[string]string `json:"metadata,omitempty"`
}
