package api

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// DependencyStatus is one dependency's health for the /health response.
type DependencyStatus struct {
	Redis     string `json:"redis"`
	DB        string `json:"db"`
	AIService string `json:"ai_service"`
}

// HealthChecker pings the gateway's durable dependencies.
type HealthChecker struct {
	redis *redis.Client
	db    *sqlx.DB
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(redisClient *redis.Client, db *sqlx.DB) *HealthChecker {
	return &HealthChecker{redis: redisClient, db: db}
}

// Check pings each dependency with a short timeout and reports overall
// health. The AI service is this same process, so it is healthy whenever
// this handler is running to answer the check.
func (h *HealthChecker) Check(ctx context.Context) (bool, DependencyStatus) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := DependencyStatus{AIService: "healthy"}
	healthy := true

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status.Redis = "unhealthy"
			healthy = false
		} else {
			status.Redis = "healthy"
		}
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.DB = "unhealthy"
			healthy = false
		} else {
			status.DB = "healthy"
		}
	}

	return healthy, status
}
