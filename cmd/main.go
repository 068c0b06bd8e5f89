package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wellnessai/agent-backend/internal/clients/profile"
	"github.com/wellnessai/agent-backend/internal/db"
	"github.com/wellnessai/agent-backend/internal/handlers"
	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/memory"
	"github.com/wellnessai/agent-backend/internal/middleware"
	"github.com/wellnessai/agent-backend/internal/observability"
	"github.com/wellnessai/agent-backend/internal/repos"
	"github.com/wellnessai/agent-backend/internal/server"
	"github.com/wellnessai/agent-backend/internal/services"
	"github.com/wellnessai/agent-backend/internal/utils"
	"github.com/wellnessai/agent-backend/internal/vector"
)

func main() {
	// .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecret := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	port := utils.GetEnv("PORT", "8080", log)
	safetyThreshold := utils.GetEnvAsFloat("SAFETY_CONFIDENCE_THRESHOLD", 0.6, log)
	sessionBackend := utils.GetEnv("SESSION_BACKEND", "inproc", log)
	sessionEntries := utils.GetEnvAsInt("SESSION_MAX_ENTRIES", memory.DefaultMaxEntries, log)
	sessionTTLMin := utils.GetEnvAsInt("SESSION_TTL_MINUTES", 30, log)
	allowOrigins := server.SplitOrigins(utils.GetEnv("CORS_ALLOW_ORIGINS", "", log))

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "wellness-agent",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(ctx)
		}()
	}

	// Database
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Auto migration failed", "error", err)
	}
	gormDB := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	planStateRepo := repos.NewUserPlanStateRepo(gormDB, log)
	callLogRepo := repos.NewAICallLogRepo(gormDB, log)

	// Vector index
	index, err := vector.NewQdrantIndex(log, vector.QdrantConfigFromEnv(log))
	if err != nil {
		log.Error("Could not init vector index", "error", err)
		os.Exit(1)
	}

	// Session memory
	sessionTTL := time.Duration(sessionTTLMin) * time.Minute
	var sessions memory.Store
	if sessionBackend == "redis" {
		redisClient, rErr := db.NewRedisClient(log)
		if rErr != nil {
			log.Error("Could not init redis session backend", "error", rErr)
			os.Exit(1)
		}
		sessions = memory.NewRedisStore(log, redisClient, sessionEntries, sessionTTL)
	} else {
		sessions = memory.NewInProcStore(log, sessionEntries, sessionTTL)
	}

	// Services
	log.Info("Setting up Services from main...")
	oracle, err := services.NewOpenAIOracle(log)
	if err != nil {
		log.Error("Could not init OpenAI oracle", "error", err)
		os.Exit(1)
	}
	safetyService := services.NewSafetyService(log, oracle, safetyThreshold)
	plannerService := services.NewPlannerService(log, oracle)
	planStateService := services.NewPlanStateService(log, planStateRepo)
	retrieverService := services.NewRetrieverService(log, oracle, index)
	generatorService := services.NewPlanGeneratorService(log, oracle, retrieverService, planStateService, callLogRepo)
	agentService := services.NewAgentService(log, safetyService, plannerService, planStateService, retrieverService, oracle, sessions)

	// Clients
	profileClient := profile.NewClient(log)

	// Handlers & middleware
	agentHandler := handlers.NewAgentHandler(log, agentService, planStateService, generatorService, profileClient)
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecret)

	// Router
	router := server.NewRouter(server.RouterConfig{
		AgentHandler:   agentHandler,
		AuthMiddleware: authMiddleware,
		AllowOrigins:   allowOrigins,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
