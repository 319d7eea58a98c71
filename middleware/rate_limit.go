package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"verifyengine/config"
	"verifyengine/models"
)

// APIRateLimiter throttles the §6 inbound verify/enrich/submit_bulk
// endpoints per authenticated user, adapted from the teacher's
// sender-testing rate limiter (same Redis-backed fiber.Storage, generalized
// from a per-sender key to a per-user-per-path key since this engine has no
// sender concept).
func APIRateLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			user, ok := c.Locals("user").(*models.User)
			if !ok || user == nil {
				return "anon:" + c.IP()
			}
			return fmt.Sprintf("rl:%d:%s", user.ID, c.Path())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too many requests, please slow down",
				"retry_after": "1 minute",
			})
		},
		Storage: newRateLimitStorage(),
	})
}

func newRateLimitStorage() fiber.Storage {
	if config.AppConfig.Redis.Address == "" {
		return nil
	}
	return NewRedisStorage(config.AppConfig.Redis)
}

// RedisStorage implements fiber.Storage over go-redis, matching the
// teacher's distributed rate-limit storage.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	b, err := r.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
