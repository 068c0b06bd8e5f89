package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wellnessai/agent-backend/internal/clients/profile"
	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/middleware"
	"github.com/wellnessai/agent-backend/internal/services"
	"github.com/wellnessai/agent-backend/internal/types"
)

type AgentHandler struct {
	log       *logger.Logger
	agent     services.AgentService
	planState services.PlanStateService
	generator services.PlanGeneratorService
	profiles  profile.Client
}

func NewAgentHandler(
	baseLog *logger.Logger,
	agent services.AgentService,
	planState services.PlanStateService,
	generator services.PlanGeneratorService,
	profiles profile.Client,
) *AgentHandler {
	return &AgentHandler{
		log:       baseLog.With("handler", "AgentHandler"),
		agent:     agent,
		planState: planState,
		generator: generator,
		profiles:  profiles,
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *AgentHandler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.agent.Chat(c.Request.Context(), userID, req.Message)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *AgentHandler) GetMealPlan(c *gin.Context)    { h.getPlan(c, types.PlanKindMeal) }
func (h *AgentHandler) GetWorkoutPlan(c *gin.Context) { h.getPlan(c, types.PlanKindWorkout) }

func (h *AgentHandler) getPlan(c *gin.Context, kind types.PlanKind) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}

	state, err := h.planState.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	record, exists := state[kind]
	if !exists || record == nil {
		c.JSON(http.StatusNotFound, types.ChatResult{
			Type:    types.ChatTypeNoPlan,
			Message: fmt.Sprintf("no %s found", kind),
		})
		return
	}

	RespondOK(c, gin.H{
		"type":       types.ChatTypeMessage,
		"plan":       record.Plan,
		"start_date": record.StartDate,
		"end_date":   record.EndDate,
		"active":     h.planState.IsActive(state, kind),
	})
}

func (h *AgentHandler) CreateMealPlan(c *gin.Context)    { h.createPlan(c, types.PlanKindMeal) }
func (h *AgentHandler) CreateWorkoutPlan(c *gin.Context) { h.createPlan(c, types.PlanKindWorkout) }

// createPlan fetches the plan input from the profile service and runs
// generation. Plans are only ever created through this explicit call,
// never from chat.
func (h *AgentHandler) createPlan(c *gin.Context, kind types.PlanKind) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}
	token := middleware.Token(c)

	var payload map[string]any
	var err error
	if kind == types.PlanKindMeal {
		payload, err = h.profiles.GetGoalInput(c.Request.Context(), token)
	} else {
		payload, err = h.profiles.GetProfileInput(c.Request.Context(), token)
	}
	if err != nil {
		h.respondErr(c, err)
		return
	}

	record, warnings, err := h.generator.Generate(c.Request.Context(), userID, kind, payload)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	RespondOK(c, gin.H{
		"type":       types.ChatTypePlanCreated,
		"plan":       record.Plan,
		"start_date": record.StartDate,
		"end_date":   record.EndDate,
		"warnings":   warnings,
	})
}

type updatePlanRequest struct {
	Plan map[string]any `json:"plan"`
}

func (h *AgentHandler) UpdateMealPlan(c *gin.Context)    { h.updatePlan(c, types.PlanKindMeal) }
func (h *AgentHandler) UpdateWorkoutPlan(c *gin.Context) { h.updatePlan(c, types.PlanKindWorkout) }

// updatePlan replaces an existing plan's JSON in place, keeping the
// original validity window.
func (h *AgentHandler) updatePlan(c *gin.Context, kind types.PlanKind) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}

	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.Plan) == 0 {
		RespondError(c, http.StatusBadRequest, "validation_error", &types.ValidationError{Field: "plan", Msg: "must not be empty"})
		return
	}

	state, err := h.planState.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	record, exists := state[kind]
	if !exists || record == nil {
		c.JSON(http.StatusNotFound, types.ChatResult{
			Type:    types.ChatTypeNoPlan,
			Message: fmt.Sprintf("no %s found", kind),
		})
		return
	}

	updated := &types.PlanRecord{
		Plan:      req.Plan,
		StartDate: record.StartDate,
		EndDate:   record.EndDate,
	}
	if err := h.planState.Save(c.Request.Context(), userID, kind, updated); err != nil {
		h.respondErr(c, err)
		return
	}

	RespondOK(c, gin.H{
		"type":       types.ChatTypePlanUpdated,
		"plan":       updated.Plan,
		"start_date": updated.StartDate,
		"end_date":   updated.EndDate,
	})
}

func (h *AgentHandler) DeleteMealPlan(c *gin.Context)    { h.deletePlan(c, types.PlanKindMeal) }
func (h *AgentHandler) DeleteWorkoutPlan(c *gin.Context) { h.deletePlan(c, types.PlanKindWorkout) }

func (h *AgentHandler) deletePlan(c *gin.Context, kind types.PlanKind) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user"))
		return
	}

	removed, err := h.planState.Delete(c.Request.Context(), userID, kind)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, types.ChatResult{
			Type:    types.ChatTypeNoPlan,
			Message: fmt.Sprintf("no %s found", kind),
		})
		return
	}
	RespondOK(c, gin.H{"type": types.ChatTypePlanDeleted})
}

// respondErr maps the domain error taxonomy onto HTTP statuses.
func (h *AgentHandler) respondErr(c *gin.Context, err error) {
	var vErr *types.ValidationError
	if errors.As(err, &vErr) {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	if errors.Is(err, services.ErrUpstreamUnavailable) {
		RespondError(c, http.StatusServiceUnavailable, "upstream_unavailable", err)
		return
	}
	var gErr *services.GenerationError
	if errors.As(err, &gErr) {
		h.log.Error("plan generation exhausted repair budget",
			"kind", string(gErr.Kind), "log_id", gErr.LogID.String())
		RespondError(c, http.StatusBadGateway, "generation_failed", err)
		return
	}
	h.log.Error("request failed", "error", err)
	RespondError(c, http.StatusInternalServerError, "internal_error", fmt.Errorf("internal error"))
}
