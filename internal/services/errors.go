package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wellnessai/agent-backend/internal/types"
)

// ErrUpstreamUnavailable marks a failed call to a collaborating
// service (profile provider). Handlers map it to 503.
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

// GenerationError is returned when plan generation exhausted its
// repair budget. Raw carries the oracle's last unparsed output and
// LogID points at the persisted ai_call_log row.
type GenerationError struct {
	Kind  types.PlanKind
	Raw   string
	LogID uuid.UUID
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("plan generation failed for %s: oracle output did not match the required schema (log=%s)", e.Kind, e.LogID)
}
