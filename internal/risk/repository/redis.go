package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/platform/redisstore"
)

// RedisRepository keeps flagged user ids in one set.
type RedisRepository struct {
	client redis.UniversalClient
	keys   redisstore.Keyspace
}

// NewRedisRepository returns a flag repository backed by Redis under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, keys: redisstore.Keyspace(prefix)}
}

func (r *RedisRepository) key() string { return r.keys.Key("users", "require_otp") }

func (r *RedisRepository) RequireOTP(ctx context.Context, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key(), userID).Result()
	if err != nil {
		return false, redisstore.Wrap(err)
	}
	return ok, nil
}

func (r *RedisRepository) SetRequireOTP(ctx context.Context, userID string, required bool, at time.Time) error {
	if required {
		return redisstore.Wrap(r.client.SAdd(ctx, r.key(), userID).Err())
	}
	return redisstore.Wrap(r.client.SRem(ctx, r.key(), userID).Err())
}
