package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis-backed dedup store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces the dedup set within a shared Redis instance.
	KeyPrefix string
}

// RedisStore is a distributed implementation of Store, for deployments where
// several relay instances (or a relay and its standby) share one dedup set.
// Keys are written without a TTL: the set is append-only by contract.
type RedisStore struct {
	redisClient *redis.Client
	keyPrefix   string
	logger      zerolog.Logger
}

// NewRedisStore creates and connects a new RedisStore. It pings the Redis
// server to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis for dedup store: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis for dedup store.")

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mailrelay:processed:"
	}

	return &RedisStore{
		redisClient: rdb,
		keyPrefix:   prefix,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

// Seen reports whether the identifier exists in Redis.
func (s *RedisStore) Seen(ctx context.Context, id string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, s.keyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for id %s: %w", id, err)
	}
	return n > 0, nil
}

// Mark records the identifier in Redis with no expiry.
func (s *RedisStore) Mark(ctx context.Context, id string) error {
	if err := s.redisClient.Set(ctx, s.keyPrefix+id, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis set failed for id %s: %w", id, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}
