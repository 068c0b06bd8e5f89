package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/memory"
	"github.com/wellnessai/agent-backend/internal/types"
)

const (
	ragContextDocs  = 4
	chatTemperature = 0.7
	ragTemperature  = 0.3

	refusalDisclaimer = "I'm a wellness assistant, not a medical professional, and I can't help with that request."

	emergencyRefusal = "I'm concerned about what you're describing, and it's beyond what I can safely help with. " +
		"Please reach out to a medical professional, or contact your local emergency number or a crisis line right away. " +
		refusalDisclaimer

	medicalRefusal = "I can't help with diagnoses, medications or treatment decisions. " +
		"Please talk to a licensed healthcare professional about this. " + refusalDisclaimer
)

// AgentService is the chat orchestrator. One call, one terminal
// response: refusal, plan reuse, a plan offer, a grounded answer or
// general chat.
type AgentService interface {
	Chat(ctx context.Context, userID uuid.UUID, message string) (*types.ChatResult, error)
}

type agentService struct {
	log       *logger.Logger
	safety    SafetyService
	planner   PlannerService
	planState PlanStateService
	retriever RetrieverService
	oracle    Oracle
	sessions  memory.Store
}

func NewAgentService(
	baseLog *logger.Logger,
	safety SafetyService,
	planner PlannerService,
	planState PlanStateService,
	retriever RetrieverService,
	oracle Oracle,
	sessions memory.Store,
) AgentService {
	return &agentService{
		log:       baseLog.With("service", "AgentService"),
		safety:    safety,
		planner:   planner,
		planState: planState,
		retriever: retriever,
		oracle:    oracle,
		sessions:  sessions,
	}
}

func (a *agentService) Chat(ctx context.Context, userID uuid.UUID, message string) (*types.ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &types.ValidationError{Field: "message", Msg: "must not be empty"}
	}

	verdict := a.safety.Check(ctx, message)
	if !verdict.Safe {
		a.log.Info("message refused",
			"user_id", userID.String(),
			"category", string(verdict.Category),
			"confidence", verdict.Confidence,
		)
		result := refusalResult(verdict.Category)
		a.remember(ctx, userID, message, result.Message, "")
		return result, nil
	}

	state, err := a.planState.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, intent := a.respond(ctx, userID, message, state)
	if result == nil {
		// Grounded answering and plan handling did not apply or failed;
		// fall back to plain conversation.
		result, err = a.generalChat(ctx, userID, message)
		if err != nil {
			return nil, err
		}
	}

	a.remember(ctx, userID, message, result.Message, intent)
	return result, nil
}

// respond covers every path short of general chat. A nil result means
// fall through.
func (a *agentService) respond(ctx context.Context, userID uuid.UUID, message string, state types.UserState) (*types.ChatResult, string) {
	// Fast path: the user mentions a plan domain whose plan is still
	// active. Returns the stored plan with no planner call, even when
	// the phrasing sounds like a creation request.
	if kind, ok := matchPlanKeywords(message); ok && a.planState.IsActive(state, kind) {
		return reuseResult(kind, state[kind]), intentForKind(kind)
	}

	// A bare affirmation right after an offer repeats the offer; plans
	// are only ever generated through an explicit action.
	if isAffirmation(message) {
		if sess, found, err := a.sessions.Get(ctx, userID.String()); err == nil && found {
			if kind, ok := types.PlanIntent(sess.LastIntent).Kind(); ok && !a.planState.IsActive(state, kind) {
				return offerResult(kind), sess.LastIntent
			}
		}
	}

	if a.planner.ShouldEscalate(message, state) {
		planned := a.planner.Plan(ctx, message, state)
		kind, hasKind := planned.Intent.Kind()

		switch planned.Decision {
		case types.DecisionUseExisting:
			if hasKind && a.planState.IsActive(state, kind) {
				return reuseResult(kind, state[kind]), string(planned.Intent)
			}
			if hasKind {
				return offerResult(kind), string(planned.Intent)
			}
		case types.DecisionAskCreate, types.DecisionCreateNew:
			if hasKind {
				return offerResult(kind), string(planned.Intent)
			}
		}
		// DecisionAnswer or a plan-less intent: fall through.
	}

	if looksLikeQuestion(message) {
		if result := a.ragAnswer(ctx, message); result != nil {
			return result, ""
		}
	}
	return nil, ""
}

// ragAnswer retrieves grounding passages and asks for a cited answer.
// Any failure returns nil so the caller can degrade to general chat.
func (a *agentService) ragAnswer(ctx context.Context, message string) *types.ChatResult {
	docs, err := a.retriever.Retrieve(ctx, message, ragContextDocs, nil)
	if err != nil {
		a.log.Warn("retrieval failed, degrading to general chat", "error", err)
		return nil
	}
	if len(docs) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(ragAnswerPrompt, renderContext(docs), message)
	answer, err := a.oracle.Chat(ctx, systemPrompt, prompt, ragTemperature)
	if err != nil {
		a.log.Warn("grounded answer failed, degrading to general chat", "error", err)
		return nil
	}

	return &types.ChatResult{
		Type:    types.ChatTypeMessage,
		Message: answer,
		Sources: collectSources(docs),
	}
}

func (a *agentService) generalChat(ctx context.Context, userID uuid.UUID, message string) (*types.ChatResult, error) {
	var transcript strings.Builder
	if sess, found, err := a.sessions.Get(ctx, userID.String()); err == nil && found {
		for _, e := range sess.Entries {
			fmt.Fprintf(&transcript, "%s: %s\n", e.Role, e.Content)
		}
	}

	user := message
	if transcript.Len() > 0 {
		user = fmt.Sprintf("Recent conversation:\n%s\nUser message:\n%s", transcript.String(), message)
	}

	answer, err := a.oracle.Chat(ctx, systemPrompt, user, chatTemperature)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", ErrUpstreamUnavailable)
	}
	return &types.ChatResult{
		Type:    types.ChatTypeMessage,
		Message: answer,
	}, nil
}

// remember appends both turns; session memory is best-effort.
func (a *agentService) remember(ctx context.Context, userID uuid.UUID, message, reply, intent string) {
	id := userID.String()
	if err := a.sessions.Append(ctx, id, memory.Entry{Role: "user", Content: message}, intent); err != nil {
		a.log.Warn("failed to record user turn", "error", err)
	}
	if err := a.sessions.Append(ctx, id, memory.Entry{Role: "assistant", Content: reply}, ""); err != nil {
		a.log.Warn("failed to record assistant turn", "error", err)
	}
}

func refusalResult(category types.SafetyCategory) *types.ChatResult {
	msg := refusalDisclaimer
	switch category {
	case types.SafetyCategoryEmergency:
		msg = emergencyRefusal
	case types.SafetyCategoryMedical:
		msg = medicalRefusal
	}
	return &types.ChatResult{
		Type:    types.ChatTypeRefused,
		Message: msg,
	}
}

func reuseResult(kind types.PlanKind, record *types.PlanRecord) *types.ChatResult {
	return &types.ChatResult{
		Type:    types.ChatTypeMessage,
		Message: fmt.Sprintf("Here is your current %s, valid through %s.", planNoun(kind), record.EndDate),
		Plan:    record.Plan,
	}
}

func offerResult(kind types.PlanKind) *types.ChatResult {
	return &types.ChatResult{
		Type:    types.ChatTypeActionRequired,
		Message: fmt.Sprintf("You don't have an active %s. Want me to create one from your profile?", planNoun(kind)),
		Actions: []types.ChatAction{planAction(kind)},
	}
}

func planAction(kind types.PlanKind) types.ChatAction {
	if kind == types.PlanKindWorkout {
		return types.ChatAction{Label: "Create workout plan", Action: "create_workout_plan"}
	}
	return types.ChatAction{Label: "Create meal plan", Action: "create_meal_plan"}
}

func planNoun(kind types.PlanKind) string {
	if kind == types.PlanKindWorkout {
		return "workout plan"
	}
	return "meal plan"
}

func intentForKind(kind types.PlanKind) string {
	if kind == types.PlanKindWorkout {
		return string(types.IntentWorkout)
	}
	return string(types.IntentMeal)
}

func collectSources(docs []types.RetrievedDocument) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, d := range docs {
		s, ok := d.Metadata["source"].(string)
		if !ok || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sources = append(sources, s)
	}
	return sources
}

var questionWords = []string{
	"how", "what", "why", "when", "which", "where", "who",
	"should", "can", "could", "is", "are", "does", "do",
}

func looksLikeQuestion(message string) bool {
	if strings.Contains(message, "?") {
		return true
	}
	first := strings.ToLower(message)
	if i := strings.IndexAny(first, " \t"); i > 0 {
		first = first[:i]
	}
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

func isAffirmation(message string) bool {
	switch strings.ToLower(strings.Trim(message, " .!")) {
	case "yes", "yes please", "sure", "ok", "okay", "please do", "go ahead", "yeah", "yep":
		return true
	}
	return false
}
