package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 10 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes a payment across every replica sharing one Redis.
// The key expires after ttl unless renewed. Renewal runs every ttl/3 while the
// lock is held, so a holder only loses the key if it cannot reach Redis.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	pollInterval  time.Duration
	renewInterval time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           defaultLockTTL,
		pollInterval:  defaultPollInterval,
		renewInterval: defaultLockTTL / 3,
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("payment_lock:%s", key)
}

// Lock polls SETNX until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := lockKey(key)
	token := uuid.New().String()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", k, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Release with a fresh context so a cancelled request still frees the key.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err(); err != nil {
				telemetry.Logger.Warn("Failed to release payment lock", zap.String("key", k), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive renews the key until stop is closed or the token is gone.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.renewInterval)
		renewed, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil {
			telemetry.Logger.Warn("Failed to renew payment lock", zap.String("key", key), zap.Error(err))
			continue
		}
		if renewed == 0 {
			telemetry.Logger.Error("Payment lock lost before release", zap.String("key", key))
			return
		}
	}
}
