package run

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker already claims the export lock.
var ErrLockHeld = errors.New("run: export lock already held")

// Locks serialises exports through redis. At most one run per lock key
// is in flight across all workers; the TTL bounds how long a crashed
// worker can keep a window blocked.
type Locks struct {
	client *redis.Client
}

// NewLocks constructs the lock helper.
func NewLocks(client *redis.Client) *Locks {
	return &Locks{client: client}
}

// releaseOwned deletes the key only while this acquisition still owns
// it, so a release arriving after TTL expiry cannot drop a lock some
// other worker has since claimed.
var releaseOwned = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Acquire claims the key for at most ttl and returns the matching
// release function. Without a configured client every acquisition
// succeeds, which keeps single-process batch use working.
func (l *Locks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func(ctx context.Context) error {
		return releaseOwned.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
