package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// lockTTL bounds how long a crashed sweep can hold the lock. It should
// comfortably exceed the longest expected sweep but stay below the
// scheduler interval, so a wedged instance never blocks more than one
// trigger.
const lockTTL = 15 * time.Minute

const lockKey = "sweep:run-lock"

// SweepLock serializes sweep runs across instances using SET NX. Two
// cron triggers overlapping would otherwise both walk the same booking
// windows; the ledger's conditional insert still prevents duplicate
// mail, but the second run is pure wasted work.
type SweepLock struct {
	client *Client
	logger *zap.Logger

	// token identifies this holder so Release cannot drop a lock a
	// later run re-acquired after TTL expiry.
	token string
}

// NewSweepLock creates a sweep lock.
func NewSweepLock(client *Client, logger *zap.Logger) *SweepLock {
	return &SweepLock{
		client: client,
		logger: logger,
		token:  uuid.NewString(),
	}
}

// Acquire attempts to take the lock. Returns false when another run
// holds it.
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	set, err := l.client.rdb.SetNX(ctx, lockKey, l.token, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if set {
		l.logger.Debug("sweep lock acquired", zap.String("token", l.token))
	}
	return set, nil
}

// releaseScript deletes the lock only when this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Release drops the lock if this holder still owns it.
func (l *SweepLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, l.token).Err(); err != nil {
		return fmt.Errorf("redis lock release failed: %w", err)
	}
	return nil
}
