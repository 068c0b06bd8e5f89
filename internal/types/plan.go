package types

import (
	"time"
)

// PlanKind keys the per-user plan records.
type PlanKind string

const (
	PlanKindMeal    PlanKind = "meal_plan"
	PlanKindWorkout PlanKind = "workout_plan"
)

func (k PlanKind) Valid() bool {
	return k == PlanKindMeal || k == PlanKindWorkout
}

// RequiredKeys is the top-level contract the generated plan JSON must
// satisfy for this kind.
func (k PlanKind) RequiredKeys() []string {
	if k == PlanKindWorkout {
		return []string{"weekly_schedule", "explanation", "disclaimer"}
	}
	return []string{"daily_meals", "explanation", "disclaimer"}
}

// PlanRecord is one stored plan with its validity window. Dates are
// ISO calendar dates (YYYY-MM-DD); EndDate is always StartDate+6 days,
// set at creation and replaced only wholesale.
type PlanRecord struct {
	Plan      map[string]any `json:"plan"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
}

// UserState maps plan kind to the latest stored record for a user.
type UserState map[PlanKind]*PlanRecord

// PlanWindow computes the inclusive 7-day validity window anchored at
// the given day.
func PlanWindow(today time.Time) (start, end string) {
	s := today
	e := today.AddDate(0, 0, 6)
	return s.Format("2006-01-02"), e.Format("2006-01-02")
}
