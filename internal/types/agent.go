package types

// SafetyCategory classifies why a message was (or was not) flagged.
type SafetyCategory string

const (
	SafetyCategoryGeneral   SafetyCategory = "general"
	SafetyCategoryMedical   SafetyCategory = "medical"
	SafetyCategoryEmergency SafetyCategory = "emergency"
)

// SafetyResult is the safety gate verdict for a single message.
// Below the configured confidence floor, Safe is always false.
type SafetyResult struct {
	Safe       bool           `json:"safe"`
	Category   SafetyCategory `json:"category"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason,omitempty"`
}

// PlanIntent is what the planner believes the user is talking about.
type PlanIntent string

const (
	IntentMeal    PlanIntent = "meal"
	IntentWorkout PlanIntent = "workout"
	IntentGeneral PlanIntent = "general"
)

func (i PlanIntent) Valid() bool {
	return i == IntentMeal || i == IntentWorkout || i == IntentGeneral
}

// Kind maps a plan-scoped intent to its stored plan kind.
func (i PlanIntent) Kind() (PlanKind, bool) {
	switch i {
	case IntentMeal:
		return PlanKindMeal, true
	case IntentWorkout:
		return PlanKindWorkout, true
	default:
		return "", false
	}
}

// PlanDecision is the planner's recommended next step.
type PlanDecision string

const (
	DecisionUseExisting PlanDecision = "use_existing"
	DecisionAskCreate   PlanDecision = "ask_create"
	DecisionCreateNew   PlanDecision = "create_new"
	DecisionAnswer      PlanDecision = "answer"
)

func (d PlanDecision) Valid() bool {
	switch d {
	case DecisionUseExisting, DecisionAskCreate, DecisionCreateNew, DecisionAnswer:
		return true
	}
	return false
}

// PlannerResult is produced fresh per request and never persisted.
type PlannerResult struct {
	Intent     PlanIntent   `json:"intent"`
	Decision   PlanDecision `json:"decision"`
	Reason     string       `json:"reason,omitempty"`
	Confidence float64      `json:"confidence"`
}

// RetrievedDocument is one ranked passage from the vector index.
// Metadata always carries a "source" key.
type RetrievedDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// ChatAction is a button the client can render for an actionable reply.
type ChatAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// ChatResult response type values mirror the client contract.
const (
	ChatTypeMessage        = "message"
	ChatTypeActionRequired = "action_required"
	ChatTypePlanCreated    = "plan_created"
	ChatTypePlanUpdated    = "plan_updated"
	ChatTypePlanDeleted    = "plan_deleted"
	ChatTypeNoPlan         = "no_plan"
	ChatTypeRefused        = "refused"
)

// ChatResult is the orchestrator's terminal response for one turn.
type ChatResult struct {
	Type     string         `json:"type"`
	Message  string         `json:"message,omitempty"`
	Plan     map[string]any `json:"plan,omitempty"`
	Actions  []ChatAction   `json:"actions,omitempty"`
	Sources  []string       `json:"sources,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}
