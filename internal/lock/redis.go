package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's TTL only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a SET NX PX lock shared by every service instance.
type RedisLocker struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder can block
// others; a live holder keeps extending it until it unlocks.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
		logger:       logger,
	}
}

// Lock polls until the resource key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, resourceID uuid.UUID) (func(), error) {
	key := lockKey(resourceID)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.hold(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold starts the renewal watchdog and returns the unlock func.
func (l *RedisLocker) hold(key, token string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.renew(key, token, done)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
			l.release(key, token)
		})
	}
}

// renew re-extends the TTL every third of it until done is closed or the key is lost.
func (l *RedisLocker) renew(key, token string, done <-chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.logger.Warn("failed to renew resource lock",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		if extended == 0 {
			l.logger.Warn("resource lock lost before unlock", zap.String("key", key))
			return
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// The caller's context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release resource lock",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Ping checks the Redis connection for readiness probes.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func lockKey(resourceID uuid.UUID) string {
	return "lock:parking:resource:" + resourceID.String()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
