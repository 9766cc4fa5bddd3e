package permcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hrms/internal/logger"
)

const keyPrefix = "perm:user:"

// RedisCache shares resolved permissions between API instances.
// Any redis failure degrades to a miss.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func redisKey(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

func (r *RedisCache) Get(ctx context.Context, userID uuid.UUID) ([]string, bool) {
	val, err := r.rdb.Get(ctx, redisKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Get().WithError(err).WithField("userId", userID).Warn("permission cache read failed")
		}
		return nil, false
	}
	var codes []string
	if err := json.Unmarshal([]byte(val), &codes); err != nil {
		logger.LogError("permcache", "Get", "decode cached permissions", userID, err)
		return nil, false
	}
	return codes, true
}

func (r *RedisCache) Put(ctx context.Context, userID uuid.UUID, codes []string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if codes == nil {
		codes = []string{}
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		logger.LogError("permcache", "Put", "encode permissions", userID, err)
		return
	}
	if err := r.rdb.Set(ctx, redisKey(userID), raw, ttl).Err(); err != nil {
		logger.Get().WithError(err).WithField("userId", userID).Warn("permission cache write failed")
	}
}

func (r *RedisCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = redisKey(id)
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Get().WithError(err).WithField("users", len(keys)).Warn("permission cache eviction failed")
	}
}
