package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/services"
	"github.com/wellnessai/agent-backend/internal/utils"
)

// Client fetches plan inputs from the user profile service. The caller
// forwards its bearer token; the profile service resolves the user
// from it.
type Client interface {
	// GetGoalInput returns the raw meal-planning payload.
	GetGoalInput(ctx context.Context, token string) (map[string]any, error)
	// GetProfileInput returns the raw workout-planning payload.
	GetProfileInput(ctx context.Context, token string) (map[string]any, error)
}

type httpClient struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseLog *logger.Logger) Client {
	log := baseLog.With("client", "ProfileClient")
	baseURL := utils.GetEnv("USER_PROFILE_SERVICE_URL", "http://localhost:8081", log)
	timeoutSec := utils.GetEnvAsInt("USER_PROFILE_TIMEOUT_SECONDS", 5, log)

	return &httpClient{
		log:        log,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (c *httpClient) GetGoalInput(ctx context.Context, token string) (map[string]any, error) {
	return c.get(ctx, "/api/v1/users/me/goal-input", token)
}

func (c *httpClient) GetProfileInput(ctx context.Context, token string) (map[string]any, error) {
	return c.get(ctx, "/api/v1/users/me/profile-input", token)
}

func (c *httpClient) get(ctx context.Context, path, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("profile service unreachable", "path", path, "error", err)
		return nil, fmt.Errorf("profile service request failed: %w", services.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("profile service error status", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("profile service returned %d: %w", resp.StatusCode, services.ErrUpstreamUnavailable)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("profile service returned invalid JSON: %w", services.ErrUpstreamUnavailable)
	}
	return payload, nil
}
