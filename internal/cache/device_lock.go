package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
)

// DefaultLockTTL bounds how long a crashed host can keep a device reserved.
const DefaultLockTTL = 2 * time.Hour

// releaseScript deletes the key only when it still holds the caller's owner id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a capture.Lock shared by every host talking to the same Redis.
type RedisLock struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ capture.Lock = (*RedisLock)(nil)

// NewRedisLock creates a lock whose reservations expire after ttl.
func NewRedisLock(client redis.Cmdable, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLock{client: client, ttl: ttl}
}

// Acquire reserves device for owner with SET NX. A second acquire by the same
// owner refreshes the expiry.
func (l *RedisLock) Acquire(ctx context.Context, device, owner string) error {
	key := DeviceLockKey(device)
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserving device %s: %w", device, err)
	}
	if ok {
		return nil
	}

	current, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return l.Acquire(ctx, device, owner)
	}
	if err != nil {
		return fmt.Errorf("reading device %s owner: %w", device, err)
	}
	if current != owner {
		return apperrors.ErrDeviceBusy
	}
	return l.client.Expire(ctx, key, l.ttl).Err()
}

// Release frees device if owner still holds it.
func (l *RedisLock) Release(ctx context.Context, device, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{DeviceLockKey(device)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing device %s: %w", device, err)
	}
	return nil
}

// DeviceLockKey generates the Redis key for a device reservation.
func DeviceLockKey(device string) string {
	return fmt.Sprintf("recorder:device:%s", device)
}
