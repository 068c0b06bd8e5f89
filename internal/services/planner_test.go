package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wellnessai/agent-backend/internal/types"
)

func activeState(kinds ...types.PlanKind) types.UserState {
	state := types.UserState{}
	start, end := types.PlanWindow(time.Now())
	for _, k := range kinds {
		state[k] = &types.PlanRecord{
			Plan:      map[string]any{"stub": true},
			StartDate: start,
			EndDate:   end,
		}
	}
	return state
}

func expiredState(kind types.PlanKind) types.UserState {
	start, end := types.PlanWindow(time.Now().AddDate(0, 0, -10))
	return types.UserState{
		kind: &types.PlanRecord{
			Plan:      map[string]any{"stub": true},
			StartDate: start,
			EndDate:   end,
		},
	}
}

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		state   types.UserState
		want    bool
	}{
		{
			name:    "creation term",
			message: "please create a meal plan for me",
			state:   types.UserState{},
			want:    true,
		},
		{
			name:    "creation term with active plan still escalates",
			message: "make me a new workout plan",
			state:   activeState(types.PlanKindWorkout),
			want:    true,
		},
		{
			name:    "show term with missing plan",
			message: "show me my meal plan",
			state:   types.UserState{},
			want:    true,
		},
		{
			name:    "show term with expired plan",
			message: "can I see my workout plan",
			state:   expiredState(types.PlanKindWorkout),
			want:    true,
		},
		{
			name:    "show term with active plan",
			message: "show me my meal plan",
			state:   activeState(types.PlanKindMeal),
			want:    false,
		},
		{
			name:    "plain question",
			message: "what should I eat after a run",
			state:   types.UserState{},
			want:    false,
		},
		{
			name:    "great is not a creation term",
			message: "I had a great breakfast today",
			state:   types.UserState{},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPlannerService(testLogger(t), &mockOracle{})
			if got := svc.ShouldEscalate(tt.message, tt.state); got != tt.want {
				t.Errorf("ShouldEscalate(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestMatchPlanKeywords(t *testing.T) {
	tests := []struct {
		message  string
		wantKind types.PlanKind
		wantOK   bool
	}{
		{"what about my meal plan", types.PlanKindMeal, true},
		{"I love eating pasta", types.PlanKindMeal, true},
		{"time to train legs", types.PlanKindWorkout, true},
		{"create something for me", "", false},
		{"how is the weather", "", false},
	}
	for _, tt := range tests {
		kind, ok := matchPlanKeywords(tt.message)
		if ok != tt.wantOK || kind != tt.wantKind {
			t.Errorf("matchPlanKeywords(%q) = (%q, %v), want (%q, %v)",
				tt.message, kind, ok, tt.wantKind, tt.wantOK)
		}
	}
}

func TestPlanStrictResponse(t *testing.T) {
	oracle := &mockOracle{
		chatResponses: []string{`{"intent": "workout", "decision": "ask_create", "reason": "no plan", "confidence": 0.92}`},
	}
	svc := NewPlannerService(testLogger(t), oracle)

	got := svc.Plan(context.Background(), "I want a workout plan", types.UserState{})
	if got.Intent != types.IntentWorkout {
		t.Errorf("Intent = %q, want workout", got.Intent)
	}
	if got.Decision != types.DecisionAskCreate {
		t.Errorf("Decision = %q, want ask_create", got.Decision)
	}
	if got.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", got.Confidence)
	}
}

func TestPlanLooseMappers(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		wantIntent   types.PlanIntent
		wantDecision types.PlanDecision
		wantMapper   string
	}{
		{
			name:         "alternative keys",
			response:     `{"label": "meal", "next_action": "create_new"}`,
			wantIntent:   types.IntentMeal,
			wantDecision: types.DecisionCreateNew,
			wantMapper:   "alternative_keys",
		},
		{
			name:         "invalid enums rescued via alternative keys",
			response:     `{"intent": "meal_planning", "decision": "make_new_plan"}`,
			wantIntent:   types.IntentMeal,
			wantDecision: types.DecisionCreateNew,
			wantMapper:   "alternative_keys",
		},
		{
			name:         "value scan over free-form keys",
			response:     `{"analysis": "the user asks about workouts", "suggestion": "offer to build one"}`,
			wantIntent:   types.IntentWorkout,
			wantDecision: types.DecisionAskCreate,
			wantMapper:   "value_scan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &mockOracle{chatResponses: []string{tt.response}}
			svc := NewPlannerService(testLogger(t), oracle)

			got := svc.Plan(context.Background(), "msg", types.UserState{})
			if got.Intent != tt.wantIntent {
				t.Errorf("Intent = %q, want %q", got.Intent, tt.wantIntent)
			}
			if got.Decision != tt.wantDecision {
				t.Errorf("Decision = %q, want %q", got.Decision, tt.wantDecision)
			}
			if got.Confidence != 0.6 {
				t.Errorf("Confidence = %v, want 0.6 for loosely mapped output", got.Confidence)
			}
			if !strings.Contains(got.Reason, tt.wantMapper) {
				t.Errorf("Reason = %q, want mention of mapper %q", got.Reason, tt.wantMapper)
			}
		})
	}
}

func TestPlanDefaults(t *testing.T) {
	t.Run("unparseable output", func(t *testing.T) {
		oracle := &mockOracle{chatResponses: []string{"I cannot decide."}}
		svc := NewPlannerService(testLogger(t), oracle)

		got := svc.Plan(context.Background(), "msg", types.UserState{})
		if got.Intent != types.IntentGeneral || got.Decision != types.DecisionAnswer {
			t.Errorf("got (%q, %q), want (general, answer)", got.Intent, got.Decision)
		}
		if got.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0", got.Confidence)
		}
	})

	t.Run("oracle error", func(t *testing.T) {
		oracle := &mockOracle{chatErr: fmt.Errorf("boom")}
		svc := NewPlannerService(testLogger(t), oracle)

		got := svc.Plan(context.Background(), "msg", types.UserState{})
		if got.Intent != types.IntentGeneral || got.Decision != types.DecisionAnswer {
			t.Errorf("got (%q, %q), want (general, answer)", got.Intent, got.Decision)
		}
	})

	t.Run("json with no usable signal", func(t *testing.T) {
		oracle := &mockOracle{chatResponses: []string{`{"score": 42}`}}
		svc := NewPlannerService(testLogger(t), oracle)

		got := svc.Plan(context.Background(), "msg", types.UserState{})
		if got.Intent != types.IntentGeneral || got.Decision != types.DecisionAnswer {
			t.Errorf("got (%q, %q), want (general, answer)", got.Intent, got.Decision)
		}
	})
}
