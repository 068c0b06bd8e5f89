package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wellnessai/agent-backend/internal/logger"
	"github.com/wellnessai/agent-backend/internal/utils"
)

// NewRedisClient connects to Redis and verifies the connection with a
// ping. Only needed when SESSION_BACKEND=redis.
func NewRedisClient(baseLog *logger.Logger) (*redis.Client, error) {
	log := baseLog.With("service", "Redis")

	addr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log)
	password := utils.GetEnv("REDIS_PASSWORD", "", log)
	dbNum := utils.GetEnvAsInt("REDIS_DB", 0, log)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis connected", "addr", addr, "db", dbNum)
	return client, nil
}
