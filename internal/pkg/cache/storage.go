package cache

import (
	"strconv"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// limiterDatabase keeps rate limiter counters apart from cached lookups (DB 0).
const limiterDatabase = 1

// NewFiberStorage returns a fiber.Storage backed by the cache server, used by
// the webhook rate limiter so limits hold across instances.
func NewFiberStorage(cfg config.CacheConfig) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
