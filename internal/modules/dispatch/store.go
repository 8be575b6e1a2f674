// README: Dispatch bookkeeping in Redis: per-job expansion locks.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldops/internal/types"
)

const (
	expandLockPrefix = "dispatch:job:%s:expand_lock"
	// expandLockTTL caps how long a crashed expander can hold the lock.
	expandLockTTL = 30 * time.Second
)

type Store struct {
	redis *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{redis: rdb}
}

func (s *Store) TryLockExpand(ctx context.Context, jobID types.ID) (bool, error) {
	return s.redis.SetNX(ctx, expandLockKey(jobID), "1", expandLockTTL).Result()
}

func (s *Store) UnlockExpand(ctx context.Context, jobID types.ID) error {
	return s.redis.Del(ctx, expandLockKey(jobID)).Err()
}

func expandLockKey(jobID types.ID) string {
	return fmt.Sprintf(expandLockPrefix, string(jobID))
}
