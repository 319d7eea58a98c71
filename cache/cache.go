// Package cache is the engine's keyed TTL store: DNS answers, verification
// results, and rate-governor counters all live here behind one small
// interface. The Redis-backed Store is grounded on the teacher's
// middleware/sender_rate_limit.go RedisStorage (a fiber.Storage
// implementation over go-redis), generalised from fiber's Get/Set/Delete/
// Reset shape into the get/set/incr/set_ttl/exists operations the engine
// needs, and hardened so backend failures degrade to miss semantics instead
// of propagating — the engine must stay correct, only slower, with no cache.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"verifyengine/telemetry"
)

// Store is the cache abstraction every component depends on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetTTL(ctx context.Context, key string, ttl time.Duration)
	Exists(ctx context.Context, key string) bool
}

// RedisStore implements Store over go-redis, matching the connection shape
// of the teacher's RedisStorage (Addr/Password/DB from a RedisConfig).
type RedisStore struct {
	client *redis.Client
	log    *telemetry.Logger
}

// Config mirrors the teacher's config.RedisConfig fields this store needs.
type Config struct {
	Address  string
	Password string
	DB       int
}

func NewRedisStore(cfg Config, log *telemetry.Logger) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		log: log,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Error("cache_get_failed", err, map[string]interface{}{"key": key})
		}
		return nil, false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Error("cache_set_failed", err, map[string]interface{}{"key": key})
	}
}

// Incr atomically increments key, establishing ttl only the first time the
// key is created (mirrors §4.4's windowed-counter semantics: the window
// length is fixed at creation and never extended by subsequent increments).
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	val, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.log.Error("cache_incr_failed", err, map[string]interface{}{"key": key})
		return 0, err
	}
	if val == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.log.Error("cache_incr_expire_failed", err, map[string]interface{}{"key": key})
		}
	}
	return val, nil
}

func (s *RedisStore) SetTTL(ctx context.Context, key string, ttl time.Duration) {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		s.log.Error("cache_setttl_failed", err, map[string]interface{}{"key": key})
	}
}

func (s *RedisStore) Exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.log.Error("cache_exists_failed", err, map[string]interface{}{"key": key})
		return false
	}
	return n > 0
}

func (s *RedisStore) Close() error { return s.client.Close() }

// TTL presets named in §3's Cache Entry invariant.
const (
	TTLMXRecord       = 24 * time.Hour
	TTLPositiveResult = 24 * time.Hour
	TTLNegativeResult = 12 * time.Hour
	TTLUsageSnapshot  = 1 * time.Hour
)
