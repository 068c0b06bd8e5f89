package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/repos"
	"github.com/wellnessai/agent-backend/internal/types"
)

const (
	planContextDocs     = 6
	maxReformatAttempts = 2
	// Daily totals within this fraction of the calorie target pass the
	// conformance check.
	calorieTolerance = 0.05
	generationTemp   = 0.7
)

// PlanGeneratorService produces a structured 7-day plan, repairs
// malformed oracle output, and stores the result with its validity
// window. Validation errors on the profile are returned as-is;
// exhausted repair budgets come back as *GenerationError.
type PlanGeneratorService interface {
	Generate(ctx context.Context, userID uuid.UUID, kind types.PlanKind, profile map[string]any) (*types.PlanRecord, []string, error)
}

type planGeneratorService struct {
	log       *logger.Logger
	oracle    Oracle
	retriever RetrieverService
	planState PlanStateService
	callLogs  repos.AICallLogRepo
}

func NewPlanGeneratorService(
	baseLog *logger.Logger,
	oracle Oracle,
	retriever RetrieverService,
	planState PlanStateService,
	callLogs repos.AICallLogRepo,
) PlanGeneratorService {
	return &planGeneratorService{
		log:       baseLog.With("service", "PlanGeneratorService"),
		oracle:    oracle,
		retriever: retriever,
		planState: planState,
		callLogs:  callLogs,
	}
}

func (g *planGeneratorService) Generate(ctx context.Context, userID uuid.UUID, kind types.PlanKind, profile map[string]any) (*types.PlanRecord, []string, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("invalid plan kind %q", kind)
	}

	query, calorieTarget, profileJSON, err := g.prepareProfile(kind, profile)
	if err != nil {
		return nil, nil, err
	}

	filter := map[string]any{"category": "nutrition"}
	if kind == types.PlanKindWorkout {
		filter = map[string]any{"category": "fitness"}
	}

	docs, err := g.retriever.Retrieve(ctx, query, planContextDocs, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving plan context: %w", err)
	}

	template := mealPlanPrompt
	if kind == types.PlanKindWorkout {
		template = workoutPlanPrompt
	}
	prompt := fmt.Sprintf(template, renderContext(docs), profileJSON)

	plan, raw, err := g.generateWithRepair(ctx, kind, prompt)
	if err != nil {
		logID := g.recordFailure(ctx, userID, kind, prompt, raw)
		return nil, nil, &GenerationError{Kind: kind, Raw: raw, LogID: logID}
	}

	var warnings []string
	if kind == types.PlanKindMeal {
		warnings = checkCalorieConformance(plan, calorieTarget)
		for _, w := range warnings {
			g.log.Warn("meal plan calorie deviation", "user_id", userID.String(), "detail", w)
		}
	}

	start, end := types.PlanWindow(time.Now())
	record := &types.PlanRecord{
		Plan:      plan,
		StartDate: start,
		EndDate:   end,
	}
	if err := g.planState.Save(ctx, userID, kind, record); err != nil {
		return nil, nil, err
	}

	g.log.Info("plan generated",
		"user_id", userID.String(),
		"kind", string(kind),
		"start_date", start,
		"end_date", end,
		"warnings", len(warnings),
	)
	return record, warnings, nil
}

// prepareProfile validates the raw payload through the typed DTO for
// the kind and derives the retrieval query from its fields.
func (g *planGeneratorService) prepareProfile(kind types.PlanKind, profile map[string]any) (query string, calorieTarget int, profileJSON string, err error) {
	switch kind {
	case types.PlanKindMeal:
		p, vErr := types.MealPlanProfileFromMap(profile)
		if vErr != nil {
			return "", 0, "", vErr
		}
		encoded, mErr := json.Marshal(p)
		if mErr != nil {
			return "", 0, "", mErr
		}
		query = fmt.Sprintf("meal plan nutrition guidance for a %s, goal %s, %d kcal per day, weight %.0f kg",
			p.Gender, p.Goal, p.CalorieTarget, p.WeightKg)
		return query, p.CalorieTarget, string(encoded), nil

	case types.PlanKindWorkout:
		p, vErr := types.WorkoutPlanProfileFromMap(profile)
		if vErr != nil {
			return "", 0, "", vErr
		}
		encoded, mErr := json.Marshal(p)
		if mErr != nil {
			return "", 0, "", mErr
		}
		query = fmt.Sprintf("workout programming for a %d year old %s, %s level, %d days per week",
			p.Age, p.Gender, p.ExperienceLevel, p.AvailableDaysPerWeek)
		if p.Goal != "" {
			query += ", goal " + p.Goal
		}
		if len(p.Injuries) > 0 {
			query += ", injuries: " + strings.Join(p.Injuries, ", ")
		}
		return query, 0, string(encoded), nil
	}
	return "", 0, "", fmt.Errorf("invalid plan kind %q", kind)
}

// generateWithRepair runs the parse chain: strict JSON, balanced
// substring, then up to two reformat round-trips. The returned raw is
// the last oracle output when every stage failed.
func (g *planGeneratorService) generateWithRepair(ctx context.Context, kind types.PlanKind, prompt string) (map[string]any, string, error) {
	required := kind.RequiredKeys()

	raw, err := g.oracle.Chat(ctx, systemPrompt, prompt, generationTemp)
	if err != nil {
		return nil, "", fmt.Errorf("plan generation call: %w", err)
	}

	if plan, ok := parseCandidate(raw, required); ok {
		return plan, raw, nil
	}

	for attempt := 1; attempt <= maxReformatAttempts; attempt++ {
		g.log.Warn("plan output malformed, requesting reformat",
			"kind", string(kind), "attempt", attempt)

		repairPrompt := fmt.Sprintf(reformatPrompt, raw, strings.Join(required, ", "))
		repaired, rErr := g.oracle.Chat(ctx, systemPrompt, repairPrompt, 0)
		if rErr != nil {
			return nil, raw, fmt.Errorf("plan reformat call: %w", rErr)
		}
		raw = repaired
		if plan, ok := parseCandidate(raw, required); ok {
			return plan, raw, nil
		}
	}
	return nil, raw, fmt.Errorf("oracle output never matched schema")
}

func parseCandidate(raw string, required []string) (map[string]any, bool) {
	obj, ok := parseLooseJSONObject(raw)
	if !ok {
		return nil, false
	}
	if !hasRequiredKeys(obj, required) {
		return nil, false
	}
	return obj, true
}

// recordFailure persists the unparseable output so support can inspect
// it later. A failed insert degrades to a nil log ID.
func (g *planGeneratorService) recordFailure(ctx context.Context, userID uuid.UUID, kind types.PlanKind, prompt, raw string) uuid.UUID {
	row := &types.AICallLog{
		ID:        uuid.New(),
		UserID:    &userID,
		CallType:  "plan_generation:" + string(kind),
		ModelName: g.oracle.Model(),
		Prompt:    prompt,
		Response:  raw,
		Success:   false,
		Error:     "output did not match required plan schema",
	}
	if _, err := g.callLogs.Create(ctx, nil, []*types.AICallLog{row}); err != nil {
		g.log.Error("failed to persist ai call log", "error", err)
		return uuid.Nil
	}
	return row.ID
}

func renderContext(docs []types.RetrievedDocument) string {
	if len(docs) == 0 {
		return "(no reference material retrieved)"
	}
	var b strings.Builder
	for _, d := range docs {
		source := "unknown"
		if s, ok := d.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", source, d.Content)
	}
	return strings.TrimSpace(b.String())
}

// checkCalorieConformance sums per-day calories in daily_meals and
// reports days with no calorie data or totals more than the tolerance
// away from the target. Warnings never fail the generation.
func checkCalorieConformance(plan map[string]any, target int) []string {
	if target <= 0 {
		return nil
	}
	days, ok := plan["daily_meals"].(map[string]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(days))
	for name := range days {
		names = append(names, name)
	}
	sort.Strings(names)

	var warnings []string
	for _, name := range names {
		total := sumCalories(days[name])
		switch {
		case total == 0:
			warnings = append(warnings, fmt.Sprintf("%s has no calorie information", name))
		case math.Abs(total-float64(target))/float64(target) > calorieTolerance:
			warnings = append(warnings, fmt.Sprintf("%s totals %.0f kcal, more than 5%% off the %d kcal target", name, total, target))
		}
	}
	return warnings
}

// sumCalories walks a day's meals; snacks may be a single object or a
// list of them.
func sumCalories(day any) float64 {
	switch v := day.(type) {
	case map[string]any:
		if cal, ok := nutritionCalories(v); ok {
			return cal
		}
		var total float64
		for _, meal := range v {
			total += sumCalories(meal)
		}
		return total
	case []any:
		var total float64
		for _, item := range v {
			total += sumCalories(item)
		}
		return total
	}
	return 0
}

func nutritionCalories(meal map[string]any) (float64, bool) {
	nutrition, ok := meal["nutrition"].(map[string]any)
	if !ok {
		return 0, false
	}
	cal, ok := asFloat(nutrition["calories"])
	if !ok {
		return 0, false
	}
	return cal, true
}
