package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wellnessai/agent-backend/internal/handlers"
	"github.com/wellnessai/agent-backend/internal/middleware"
)

type RouterConfig struct {
	AgentHandler   *handlers.AgentHandler
	AuthMiddleware *middleware.AuthMiddleware
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("wellness-agent"))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Protected
	agent := router.Group("/agent")
	agent.Use(cfg.AuthMiddleware.RequireAuth())
	{
		agent.POST("/chat", cfg.AgentHandler.Chat)

		agent.GET("/meal-plan", cfg.AgentHandler.GetMealPlan)
		agent.POST("/meal-plan", cfg.AgentHandler.CreateMealPlan)
		agent.PUT("/meal-plan", cfg.AgentHandler.UpdateMealPlan)
		agent.DELETE("/meal-plan", cfg.AgentHandler.DeleteMealPlan)

		agent.GET("/workout-plan", cfg.AgentHandler.GetWorkoutPlan)
		agent.POST("/workout-plan", cfg.AgentHandler.CreateWorkoutPlan)
		agent.PUT("/workout-plan", cfg.AgentHandler.UpdateWorkoutPlan)
		agent.DELETE("/workout-plan", cfg.AgentHandler.DeleteWorkoutPlan)
	}

	return router
}

// SplitOrigins parses a comma-separated origin list from the env.
func SplitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
