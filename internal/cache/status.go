// Package cache keeps a short-lived copy of work statuses in Redis so the
// polling status endpoint stays off the database between transitions.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"listinglens/internal/domain"
)

const (
	statusKeyPrefix = "work:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache is a nil-safe wrapper over a Redis client. A nil client turns
// every lookup into a miss, so the service runs without Redis configured.
type StatusCache struct {
	rdb *redis.Client
}

// NewStatusCache wraps rdb, which may be nil.
func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

// Get returns the cached status and whether it was present.
func (c *StatusCache) Get(ctx context.Context, workID string) (domain.WorkStatus, bool, error) {
	if c == nil || c.rdb == nil {
		return "", false, nil
	}
	val, err := c.rdb.Get(ctx, statusKeyPrefix+workID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.WorkStatus(val), true, nil
}

// Set stores the status with a fixed TTL.
func (c *StatusCache) Set(ctx context.Context, workID string, status domain.WorkStatus) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, statusKeyPrefix+workID, string(status), statusTTL).Err()
}

// Invalidate drops the cached status, forcing the next read to the store.
func (c *StatusCache) Invalidate(ctx context.Context, workID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, statusKeyPrefix+workID).Err()
}
