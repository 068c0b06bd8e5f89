package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/types"
)

// Confidence bands for provider moderation verdicts.
const (
	moderationEmergencyConfidence = 0.99
	moderationMedicalConfidence   = 0.90
	moderationGeneralConfidence   = 0.80
	moderationCleanConfidence     = 0.95
)

// SafetyService gates every inbound message. Check never returns an
// error: a classification failure is itself an unsafe verdict.
type SafetyService interface {
	Check(ctx context.Context, message string) types.SafetyResult
}

type safetyService struct {
	log       *logger.Logger
	oracle    Oracle
	threshold float64
}

func NewSafetyService(baseLog *logger.Logger, oracle Oracle, confidenceThreshold float64) SafetyService {
	return &safetyService{
		log:       baseLog.With("service", "SafetyService"),
		oracle:    oracle,
		threshold: confidenceThreshold,
	}
}

func (s *safetyService) Check(ctx context.Context, message string) types.SafetyResult {
	res := s.classify(ctx, message)

	// Confidence floor: an uncertain verdict is never safe.
	if res.Confidence < s.threshold {
		res.Safe = false
	}
	return res
}

func (s *safetyService) classify(ctx context.Context, message string) types.SafetyResult {
	if mod, err := s.oracle.Moderate(ctx, message); err == nil && mod != nil {
		return mapModeration(mod)
	}
	return s.classifyWithOracle(ctx, message)
}

// mapModeration folds the provider's category set into our taxonomy by
// priority: self-harm/violence first, then health/drug terms.
func mapModeration(mod *ModerationResult) types.SafetyResult {
	if !mod.Flagged {
		return types.SafetyResult{
			Safe:       true,
			Category:   types.SafetyCategoryGeneral,
			Confidence: moderationCleanConfidence,
		}
	}

	category := types.SafetyCategoryGeneral
	confidence := moderationGeneralConfidence
	for name, hit := range mod.Categories {
		if !hit {
			continue
		}
		key := strings.ToLower(name)
		switch {
		case strings.Contains(key, "self-harm"), strings.Contains(key, "self_harm"), strings.Contains(key, "violence"):
			category = types.SafetyCategoryEmergency
			confidence = moderationEmergencyConfidence
		case strings.Contains(key, "health"), strings.Contains(key, "drug"), strings.Contains(key, "medical"):
			if category != types.SafetyCategoryEmergency {
				category = types.SafetyCategoryMedical
				confidence = moderationMedicalConfidence
			}
		}
	}

	return types.SafetyResult{
		Safe:       false,
		Category:   category,
		Confidence: confidence,
		Reason:     "flagged by provider moderation",
	}
}

func (s *safetyService) classifyWithOracle(ctx context.Context, message string) types.SafetyResult {
	raw, err := s.oracle.Chat(ctx, systemPrompt, fmt.Sprintf(safetyClassifierPrompt, message), 0)
	if err != nil {
		s.log.Warn("safety classifier call failed, defaulting to unsafe", "error", err)
		return invalidSafetyResult()
	}

	obj, ok := parseLooseJSONObject(raw)
	if !ok {
		s.log.Warn("safety classifier returned unparseable output", "raw", raw)
		return invalidSafetyResult()
	}

	encoded, err := json.Marshal(obj)
	if err != nil {
		return invalidSafetyResult()
	}
	var res types.SafetyResult
	if err := json.Unmarshal(encoded, &res); err != nil {
		s.log.Warn("safety classifier returned wrong shape", "raw", raw)
		return invalidSafetyResult()
	}

	switch res.Category {
	case types.SafetyCategoryGeneral, types.SafetyCategoryMedical, types.SafetyCategoryEmergency:
	default:
		res.Category = types.SafetyCategoryGeneral
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return res
}

func invalidSafetyResult() types.SafetyResult {
	return types.SafetyResult{
		Safe:       false,
		Category:   types.SafetyCategoryGeneral,
		Confidence: 0,
		Reason:     "invalid_safety_response",
	}
}
