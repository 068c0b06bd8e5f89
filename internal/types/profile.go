package types

import (
	"fmt"
	"strconv"
)

// ValidationError marks malformed caller input (missing or mistyped
// profile fields). Rejected immediately, never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("invalid field %q: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("missing required field %q", e.Field)
}

// MealPlanProfile is the goal input the profile service returns for
// meal planning.
type MealPlanProfile struct {
	CalorieTarget int     `json:"calorie_target"`
	Gender        string  `json:"gender"`
	WeightKg      float64 `json:"weight_kg"`
	Goal          string  `json:"goal"`
}

// WorkoutPlanProfile is the profile input for workout planning.
type WorkoutPlanProfile struct {
	Age                    int      `json:"age"`
	Gender                 string   `json:"gender"`
	HeightCm               float64  `json:"height_cm"`
	WeightKg               float64  `json:"weight_kg"`
	ExperienceLevel        string   `json:"experience_level"`
	AvailableDaysPerWeek   int      `json:"available_days_per_week"`
	Goal                   string   `json:"goal,omitempty"`
	SessionDurationMinutes int      `json:"session_duration_minutes,omitempty"`
	Injuries               []string `json:"injuries,omitempty"`
	CalorieTarget          int      `json:"calorie_target,omitempty"`
}

// MealPlanProfileFromMap validates a raw profile-service payload.
// Upstream services wrap the object in data/result/payload envelopes
// and mix snake_case with camelCase; both are tolerated.
func MealPlanProfileFromMap(raw map[string]any) (*MealPlanProfile, error) {
	d := unwrapPayload(raw)

	calorie, err := pickInt(d, "calorie_target", "calorieTarget")
	if err != nil {
		return nil, err
	}
	gender, err := pickString(d, "gender")
	if err != nil {
		return nil, err
	}
	weight, err := pickFloat(d, "weight_kg", "weightKg")
	if err != nil {
		return nil, err
	}
	goal, err := pickString(d, "goal")
	if err != nil {
		return nil, err
	}

	return &MealPlanProfile{
		CalorieTarget: calorie,
		Gender:        gender,
		WeightKg:      weight,
		Goal:          goal,
	}, nil
}

// WorkoutPlanProfileFromMap validates a raw profile-service payload.
func WorkoutPlanProfileFromMap(raw map[string]any) (*WorkoutPlanProfile, error) {
	d := unwrapPayload(raw)

	age, err := pickInt(d, "age")
	if err != nil {
		return nil, err
	}
	gender, err := pickString(d, "gender")
	if err != nil {
		return nil, err
	}
	height, err := pickFloat(d, "height_cm", "heightCm")
	if err != nil {
		return nil, err
	}
	weight, err := pickFloat(d, "weight_kg", "weightKg")
	if err != nil {
		return nil, err
	}
	level, err := pickString(d, "experience_level", "experienceLevel")
	if err != nil {
		return nil, err
	}
	days, err := pickInt(d, "available_days_per_week", "availableDaysPerWeek")
	if err != nil {
		return nil, err
	}

	p := &WorkoutPlanProfile{
		Age:                  age,
		Gender:               gender,
		HeightCm:             height,
		WeightKg:             weight,
		ExperienceLevel:      level,
		AvailableDaysPerWeek: days,
	}

	if v, ok := lookup(d, "goal"); ok {
		p.Goal = fmt.Sprint(v)
	}
	if v, ok := lookup(d, "session_duration_minutes", "sessionDurationMinutes"); ok {
		n, convErr := toInt(v)
		if convErr != nil {
			return nil, &ValidationError{Field: "session_duration_minutes", Msg: convErr.Error()}
		}
		p.SessionDurationMinutes = n
	}
	if v, ok := lookup(d, "injuries"); ok {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if item != nil {
					p.Injuries = append(p.Injuries, fmt.Sprint(item))
				}
			}
		default:
			p.Injuries = []string{fmt.Sprint(t)}
		}
	}
	if v, ok := lookup(d, "calorie_target", "calorieTarget"); ok {
		n, convErr := toInt(v)
		if convErr != nil {
			return nil, &ValidationError{Field: "calorie_target", Msg: convErr.Error()}
		}
		p.CalorieTarget = n
	}

	return p, nil
}

func unwrapPayload(raw map[string]any) map[string]any {
	for _, k := range []string{"data", "result", "payload"} {
		if inner, ok := raw[k].(map[string]any); ok {
			return inner
		}
	}
	return raw
}

func lookup(d map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(d map[string]any, keys ...string) (string, error) {
	v, ok := lookup(d, keys...)
	if !ok {
		return "", &ValidationError{Field: keys[0]}
	}
	return fmt.Sprint(v), nil
}

func pickInt(d map[string]any, keys ...string) (int, error) {
	v, ok := lookup(d, keys...)
	if !ok {
		return 0, &ValidationError{Field: keys[0]}
	}
	n, err := toInt(v)
	if err != nil {
		return 0, &ValidationError{Field: keys[0], Msg: err.Error()}
	}
	return n, nil
}

func pickFloat(d map[string]any, keys ...string) (float64, error) {
	v, ok := lookup(d, keys...)
	if !ok {
		return 0, &ValidationError{Field: keys[0]}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, &ValidationError{Field: keys[0], Msg: err.Error()}
	}
	return f, nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
