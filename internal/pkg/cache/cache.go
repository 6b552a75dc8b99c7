package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by Store.Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

var client *redis.Client

// SetupCache initializes the connection to the Dragonfly/Redis cache server.
// A failed ping is logged; lookups then fall through to their source.
func SetupCache(cfg config.CacheConfig) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warn().Err(err).Str("addr", client.Options().Addr).Msg("could not connect to cache")
	} else {
		log.Info().Str("addr", client.Options().Addr).Str("pong", pong).Msg("connected to cache")
	}
	return client
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// Store is a small key/value view over a Redis client with a key prefix.
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(c *redis.Client, prefix string) *Store {
	return &Store{client: c, prefix: prefix}
}

// Get retrieves a value from the cache by key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrMiss
	}
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set stores a value in the cache with the given key and expiration time
func (s *Store) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, s.prefix+key, value, expiration).Err()
}

// Delete removes a value from the cache by key
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
