package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/types"
)

var (
	mealKeywords    = []string{"meal", "eat", "diet", "nutrition", "food"}
	workoutKeywords = []string{"workout", "exercise", "train", "gym"}
	creationTerms   = []string{"create", "make", "new", "generate", "build"}
	showTerms       = []string{"show", "view", "see", "display"}
)

// PlannerService decides whether a message needs plan-creation
// reasoning. ShouldEscalate is the cheap heuristic; Plan consults the
// oracle and never propagates a parse failure.
type PlannerService interface {
	ShouldEscalate(message string, state types.UserState) bool
	Plan(ctx context.Context, message string, state types.UserState) types.PlannerResult
}

type plannerService struct {
	log    *logger.Logger
	oracle Oracle
}

func NewPlannerService(baseLog *logger.Logger, oracle Oracle) PlannerService {
	return &plannerService{
		log:    baseLog.With("service", "PlannerService"),
		oracle: oracle,
	}
}

// tokenize lowercases and splits on anything that is not a letter or
// digit, so "use_existing" and "meal-plan" both break apart.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// matchesAny reports whether any token of s starts with one of the
// given terms. Prefix matching catches inflections ("eating",
// "training") without substring accidents ("create" is not "eat").
func matchesAny(s string, terms []string) bool {
	for _, tok := range tokenize(s) {
		for _, t := range terms {
			if strings.HasPrefix(tok, t) {
				return true
			}
		}
	}
	return false
}

// matchPlanKeywords reports which plan domain the message references.
func matchPlanKeywords(message string) (types.PlanKind, bool) {
	if matchesAny(message, mealKeywords) {
		return types.PlanKindMeal, true
	}
	if matchesAny(message, workoutKeywords) {
		return types.PlanKindWorkout, true
	}
	return "", false
}

func (p *plannerService) ShouldEscalate(message string, state types.UserState) bool {
	if matchesAny(message, creationTerms) {
		return true
	}

	// "show me my meal plan" with nothing active needs the planner to
	// decide between offering creation and answering.
	if matchesAny(message, showTerms) {
		if kind, ok := matchPlanKeywords(message); ok && !planActive(state, kind, todayISO()) {
			return true
		}
	}
	return false
}

func (p *plannerService) Plan(ctx context.Context, message string, state types.UserState) types.PlannerResult {
	prompt := fmt.Sprintf(plannerPrompt,
		planActive(state, types.PlanKindMeal, todayISO()),
		planActive(state, types.PlanKindWorkout, todayISO()),
		message,
	)

	raw, err := p.oracle.Chat(ctx, systemPrompt, prompt, 0)
	if err != nil {
		p.log.Warn("planner oracle call failed, using default", "error", err)
		return defaultPlannerResult()
	}

	obj, ok := parseLooseJSONObject(raw)
	if !ok {
		p.log.Warn("planner output not parseable as JSON", "raw", raw)
		return defaultPlannerResult()
	}

	if res, ok := strictPlannerResult(obj); ok {
		return res
	}

	// The canonical schema failed; walk the named fallback mappers in
	// order and take the first that yields a normalized result.
	for _, m := range looseMappers {
		if res, ok := m.fn(obj); ok {
			res.Confidence = 0.6
			res.Reason = fmt.Sprintf("mapped via %s: %s", m.name, res.Reason)
			p.log.Debug("planner output loosely mapped", "mapper", m.name)
			return *res
		}
	}

	p.log.Warn("planner output did not match any known shape", "raw", raw)
	return defaultPlannerResult()
}

func defaultPlannerResult() types.PlannerResult {
	return types.PlannerResult{
		Intent:     types.IntentGeneral,
		Decision:   types.DecisionAnswer,
		Confidence: 0,
	}
}

func strictPlannerResult(obj map[string]any) (types.PlannerResult, bool) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return types.PlannerResult{}, false
	}
	var res types.PlannerResult
	if err := json.Unmarshal(encoded, &res); err != nil {
		return types.PlannerResult{}, false
	}
	if !res.Intent.Valid() || !res.Decision.Valid() {
		return types.PlannerResult{}, false
	}
	return res, true
}

// looseMapper is one named fallback for off-schema oracle output. The
// chain itself is the design artifact: add shapes here, not scattered
// conditionals.
type looseMapper struct {
	name string
	fn   func(obj map[string]any) (*types.PlannerResult, bool)
}

var looseMappers = []looseMapper{
	{name: "alternative_keys", fn: mapAlternativeKeys},
	{name: "value_scan", fn: mapValueScan},
}

// mapAlternativeKeys accepts the common off-schema key spellings the
// oracle falls into: label/classification for intent, next_action and
// action for decision.
func mapAlternativeKeys(obj map[string]any) (*types.PlannerResult, bool) {
	intentRaw, intentOK := firstString(obj, "intent", "label", "classification")
	decisionRaw, decisionOK := firstString(obj, "decision", "next_action", "action")
	if !intentOK && !decisionOK {
		return nil, false
	}

	intent := types.IntentGeneral
	if intentOK {
		if v, ok := normalizeIntent(intentRaw); ok {
			intent = v
		}
	}
	decision := types.DecisionAnswer
	if decisionOK {
		if v, ok := normalizeDecision(decisionRaw); ok {
			decision = v
		}
	}
	return &types.PlannerResult{
		Intent:   intent,
		Decision: decision,
		Reason:   "alternative keys",
	}, true
}

// mapValueScan is the last resort: scan every string value in the
// object for intent and decision keywords. Keys are visited in sorted
// order so the outcome never depends on map iteration.
func mapValueScan(obj map[string]any) (*types.PlannerResult, bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var intent types.PlanIntent
	var decision types.PlanDecision
	for _, k := range keys {
		s, ok := obj[k].(string)
		if !ok {
			continue
		}
		if intent == "" {
			if mapped, ok := normalizeIntent(s); ok {
				intent = mapped
			}
		}
		if decision == "" {
			if mapped, ok := normalizeDecision(s); ok {
				decision = mapped
			}
		}
	}
	if intent == "" && decision == "" {
		return nil, false
	}
	if intent == "" {
		intent = types.IntentGeneral
	}
	if decision == "" {
		decision = types.DecisionAnswer
	}
	return &types.PlannerResult{
		Intent:   intent,
		Decision: decision,
		Reason:   "keyword scan",
	}, true
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func normalizeIntent(raw string) (types.PlanIntent, bool) {
	switch {
	case matchesAny(raw, mealKeywords):
		return types.IntentMeal, true
	case matchesAny(raw, workoutKeywords), matchesAny(raw, []string{"fitness"}):
		return types.IntentWorkout, true
	case matchesAny(raw, []string{"general", "chat", "other"}):
		return types.IntentGeneral, true
	default:
		return "", false
	}
}

func normalizeDecision(raw string) (types.PlanDecision, bool) {
	switch {
	case matchesAny(raw, []string{"exist", "reuse"}):
		return types.DecisionUseExisting, true
	case matchesAny(raw, []string{"ask", "offer", "confirm"}):
		return types.DecisionAskCreate, true
	case matchesAny(raw, []string{"creat", "new", "generat"}):
		return types.DecisionCreateNew, true
	case matchesAny(raw, []string{"answer", "respond", "repl", "chat"}):
		return types.DecisionAnswer, true
	default:
		return "", false
	}
}
