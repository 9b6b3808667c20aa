package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vlvt-app/spark/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// --- session-scoped hidden candidates ---
//
// A decline hides the declined user for the remainder of the declining
// session regardless of the cross-session decline count. The set expires
// with the session, so a new session starts with a clean slate.

func keyHidden(sessionID uint64) string {
	return fmt.Sprintf("spark:hidden:%d", sessionID)
}

// HideCandidate adds userID to the session's hidden set and aligns the set's
// TTL with the session expiry.
func (c *RedisCache) HideCandidate(ctx context.Context, sessionID, userID uint64, until time.Time) error {
	key := keyHidden(sessionID)
	if err := c.Client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return c.Client.ExpireAt(ctx, key, until).Err()
}

// HiddenCandidates returns the user ids hidden for this session.
func (c *RedisCache) HiddenCandidates(ctx context.Context, sessionID uint64) (map[uint64]struct{}, error) {
	members, err := c.Client.SMembers(ctx, keyHidden(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	hidden := make(map[uint64]struct{}, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		hidden[id] = struct{}{}
	}
	return hidden, nil
}

// --- nearby count cache ---

const nearbyCountTTL = 30 * time.Second

func keyNearbyCount(userID uint64) string {
	return fmt.Sprintf("spark:nearby:%d", userID)
}

// GetNearbyCount returns the cached count and whether it was present.
func (c *RedisCache) GetNearbyCount(ctx context.Context, userID uint64) (int64, bool, error) {
	val, err := c.Client.Get(ctx, keyNearbyCount(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetNearbyCount caches the count with a short TTL; nearby sessions churn
// constantly, so staleness beyond half a minute is worse than a recount.
func (c *RedisCache) SetNearbyCount(ctx context.Context, userID uint64, count int64) error {
	return c.Client.Set(ctx, keyNearbyCount(userID), count, nearbyCountTTL).Err()
}
