package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wellnessai/agent-backend/internal/types"
	"github.com/wellnessai/agent-backend/internal/vector"
)

func mealProfile() map[string]any {
	return map[string]any{
		"calorie_target": 2000,
		"gender":         "male",
		"weight_kg":      80.5,
		"goal":           "fat loss",
	}
}

func workoutProfile() map[string]any {
	return map[string]any{
		"age":                     31,
		"gender":                  "female",
		"height_cm":               168.0,
		"weight_kg":               62.0,
		"experience_level":        "intermediate",
		"available_days_per_week": 4,
	}
}

// mealPlanResponse builds a valid plan where each listed day has a
// single meal carrying the whole daily total.
func mealPlanResponse(t *testing.T, dayTotals map[string]float64) string {
	t.Helper()
	days := map[string]any{}
	for day, total := range dayTotals {
		days[day] = map[string]any{
			"breakfast": map[string]any{
				"description": "meal",
				"nutrition":   map[string]any{"calories": total},
			},
		}
	}
	raw, err := json.Marshal(map[string]any{
		"daily_meals": days,
		"explanation": "balanced week",
		"disclaimer":  "not medical advice",
	})
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return string(raw)
}

type genFixture struct {
	gen       PlanGeneratorService
	planState PlanStateService
	callLogs  *fakeCallLogRepo
	oracle    *mockOracle
	index     *fakeIndex
}

func newGenFixture(t *testing.T, oracle *mockOracle) *genFixture {
	t.Helper()
	log := testLogger(t)
	index := &fakeIndex{
		docs: []vector.Document{
			{Content: "reference passage", Metadata: map[string]any{"source": "basics.md"}, Score: 0.9},
		},
	}
	planState := NewPlanStateService(log, newFakePlanStateRepo())
	callLogs := &fakeCallLogRepo{}
	return &genFixture{
		gen:       NewPlanGeneratorService(log, oracle, NewRetrieverService(log, oracle, index), planState, callLogs),
		planState: planState,
		callLogs:  callLogs,
		oracle:    oracle,
		index:     index,
	}
}

func TestGenerateMealPlanFirstTry(t *testing.T) {
	oracle := &mockOracle{
		chatResponses: []string{mealPlanResponse(t, map[string]float64{"day1": 2000, "day2": 1950})},
	}
	fx := newGenFixture(t, oracle)
	userID := uuid.New()

	record, warnings, err := fx.gen.Generate(context.Background(), userID, types.PlanKindMeal, mealProfile())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none for totals within 5%%", warnings)
	}
	if oracle.chatCalls != 1 {
		t.Errorf("chat calls = %d, want 1", oracle.chatCalls)
	}
	if oracle.embedCalls != 1 {
		t.Errorf("embed calls = %d, want 1 (retrieval)", oracle.embedCalls)
	}
	if fx.index.lastFilter == nil || fx.index.lastFilter["category"] != "nutrition" {
		t.Errorf("index filter = %v, want the nutrition category pushed down", fx.index.lastFilter)
	}

	wantStart, wantEnd := types.PlanWindow(time.Now())
	if record.StartDate != wantStart || record.EndDate != wantEnd {
		t.Errorf("window = (%s, %s), want (%s, %s)", record.StartDate, record.EndDate, wantStart, wantEnd)
	}

	state, err := fx.planState.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state[types.PlanKindMeal] == nil {
		t.Error("generated plan was not saved")
	}
}

func TestGenerateCalorieWarnings(t *testing.T) {
	oracle := &mockOracle{
		chatResponses: []string{mealPlanResponse(t, map[string]float64{
			"day1": 1900, // exactly 5% under: allowed
			"day2": 1600, // 20% under: warned
			"day3": 0,    // no data: warned
		})},
	}
	fx := newGenFixture(t, oracle)

	record, warnings, err := fx.gen.Generate(context.Background(), uuid.New(), types.PlanKindMeal, mealProfile())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if record == nil {
		t.Fatal("warnings must not block the plan")
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want exactly 2", warnings)
	}
	joined := strings.Join(warnings, "; ")
	if !strings.Contains(joined, "day2") || !strings.Contains(joined, "day3") {
		t.Errorf("warnings %v should name day2 and day3", warnings)
	}
	if strings.Contains(joined, "day1") {
		t.Errorf("day1 is within tolerance, warnings = %v", warnings)
	}
}

func TestGenerateRecoversViaReformat(t *testing.T) {
	valid := mealPlanResponse(t, map[string]float64{"day1": 2000})
	oracle := &mockOracle{
		chatResponses: []string{
			"Sure! Here's a lovely plan for you, in prose.",
			valid,
		},
	}
	fx := newGenFixture(t, oracle)

	_, _, err := fx.gen.Generate(context.Background(), uuid.New(), types.PlanKindMeal, mealProfile())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if oracle.chatCalls != 2 {
		t.Errorf("chat calls = %d, want 2 (one generation + one reformat)", oracle.chatCalls)
	}
	// The reformat prompt must carry the previous output back.
	if !strings.Contains(oracle.chatPrompts[1], "lovely plan") {
		t.Error("reformat prompt does not include the previous output")
	}
}

func TestGenerateExhaustsRepairBudget(t *testing.T) {
	oracle := &mockOracle{
		chatResponses: []string{
			"prose attempt one",
			"prose attempt two",
			"prose attempt three",
		},
	}
	fx := newGenFixture(t, oracle)
	userID := uuid.New()

	_, _, err := fx.gen.Generate(context.Background(), userID, types.PlanKindMeal, mealProfile())
	if err == nil {
		t.Fatal("expected generation to fail")
	}

	var gErr *GenerationError
	if !errors.As(err, &gErr) {
		t.Fatalf("error type = %T, want *GenerationError", err)
	}
	if gErr.Raw != "prose attempt three" {
		t.Errorf("Raw = %q, want the last oracle output", gErr.Raw)
	}
	if oracle.chatCalls != 3 {
		t.Errorf("chat calls = %d, want exactly 3 (1 generation + 2 reformats)", oracle.chatCalls)
	}

	if len(fx.callLogs.created) != 1 {
		t.Fatalf("call logs = %d, want 1 failure row", len(fx.callLogs.created))
	}
	row := fx.callLogs.created[0]
	if row.Response != "prose attempt three" || row.Success {
		t.Errorf("failure row = %+v, want last raw output and success=false", row)
	}
	if row.ModelName != "test-model" {
		t.Errorf("ModelName = %q, want the oracle's chat model", row.ModelName)
	}
	if gErr.LogID != row.ID {
		t.Errorf("LogID = %s, want the persisted row id %s", gErr.LogID, row.ID)
	}

	state, err := fx.planState.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state[types.PlanKindMeal] != nil {
		t.Error("failed generation must not save a plan")
	}
}

func TestGenerateRejectsInvalidProfile(t *testing.T) {
	oracle := &mockOracle{}
	fx := newGenFixture(t, oracle)

	profile := mealProfile()
	delete(profile, "gender")

	_, _, err := fx.gen.Generate(context.Background(), uuid.New(), types.PlanKindMeal, profile)
	var vErr *types.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Field != "gender" {
		t.Errorf("Field = %q, want gender", vErr.Field)
	}
	if oracle.chatCalls != 0 || oracle.embedCalls != 0 {
		t.Error("invalid profiles must be rejected before any oracle traffic")
	}
}

func TestGenerateWorkoutPlan(t *testing.T) {
	plan := map[string]any{
		"weekly_schedule": map[string]any{
			"monday": map[string]any{"workout_type": "push", "exercises": []any{}},
		},
		"explanation": "progressive overload",
		"disclaimer":  "not medical advice",
	}
	raw, _ := json.Marshal(plan)
	oracle := &mockOracle{chatResponses: []string{string(raw)}}
	fx := newGenFixture(t, oracle)

	record, warnings, err := fx.gen.Generate(context.Background(), uuid.New(), types.PlanKindWorkout, workoutProfile())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("workout plans have no calorie check, warnings = %v", warnings)
	}
	if record.Plan["weekly_schedule"] == nil {
		t.Error("plan missing weekly_schedule")
	}
	// The generation prompt carries the validated profile and the
	// retrieved context with its source tag.
	prompt := oracle.chatPrompts[0]
	if !strings.Contains(prompt, "intermediate") {
		t.Error("prompt missing profile fields")
	}
	if !strings.Contains(prompt, "[basics.md]") {
		t.Error("prompt missing source-tagged context")
	}
}
