package lock

import (
	"context"
	"fmt"
	"time"

	"HealthSentinel/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if this holder still owns it.
// KEYS[1] = lock key
// ARGV[1] = holder token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

const retryInterval = 50 * time.Millisecond

// client is the part of *redis.Client the lock uses.
type client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Redis is a lock shared by every sentinel process pointed at the same Redis.
type Redis struct {
	client client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{client: rdb, ttl: cfg.LockTTL, logger: logger}
}

// Lock polls SET NX until it wins or ctx ends. The key expires after the
// configured TTL so a crashed holder cannot wedge a customer.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := fmt.Sprintf("health-sentinel:lock:%s", key)
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.logger.Warn("redis unlock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
