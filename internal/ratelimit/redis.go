package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// allowScript increments the window counter, starting the window on the
// first hit, and returns the count and the remaining ttl in milliseconds.
var allowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Window   time.Duration
	Max      int
	Prefix   string
}

// Redis is a fixed-window limiter shared by every process using the same
// Redis instance.
type Redis struct {
	client *redis.Client
	window time.Duration
	max    int
	prefix string
}

var _ Limiter = (*Redis)(nil)

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	r := &Redis{client: client, window: cfg.Window, max: cfg.Max, prefix: cfg.Prefix}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.max <= 0 {
		r.max = DefaultMax
	}
	if r.prefix == "" {
		r.prefix = "clenja:ratelimit:"
	}
	return r, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := allowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count > r.max {
		if ttl < 0 {
			ttl = r.window
		}
		return Decision{Allowed: false, Limit: r.max, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Limit: r.max, Remaining: r.max - count}, nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
