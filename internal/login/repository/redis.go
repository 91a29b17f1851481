package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/login/domain"
	"session-trust-engine/internal/platform/redisstore"
)

// RedisRepository stores each pending login as a hash that Redis expires on its own.
type RedisRepository struct {
	client redis.UniversalClient
	keys   redisstore.Keyspace
}

// NewRedisRepository returns a pending login repository backed by Redis under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, keys: redisstore.Keyspace(prefix)}
}

func (r *RedisRepository) key(ref string) string { return r.keys.Key("pending_login", ref) }

// Create writes p and sets the key to expire with it.
func (r *RedisRepository) Create(ctx context.Context, p *domain.PendingLogin) error {
	key := r.key(p.Ref)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"ref":              p.Ref,
			"user_id":          p.UserID,
			"device_id":        p.DeviceID,
			"fingerprint_hash": p.FingerprintHash,
			"ip":               p.IP,
			"country":          p.Country,
			"user_agent":       p.UserAgent,
			"verdict":          p.Verdict,
			"created_at":       redisstore.FormatTime(p.CreatedAt),
			"expires_at":       redisstore.FormatTime(p.ExpiresAt),
		})
		pipe.ExpireAt(ctx, key, p.ExpiresAt)
		return nil
	})
	return redisstore.Wrap(err)
}

// Get returns the pending login for ref, or nil if not found or already expired by Redis.
func (r *RedisRepository) Get(ctx context.Context, ref string) (*domain.PendingLogin, error) {
	m, err := r.client.HGetAll(ctx, r.key(ref)).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return &domain.PendingLogin{
		Ref:             m["ref"],
		UserID:          m["user_id"],
		DeviceID:        m["device_id"],
		FingerprintHash: m["fingerprint_hash"],
		IP:              m["ip"],
		Country:         m["country"],
		UserAgent:       m["user_agent"],
		Verdict:         m["verdict"],
		CreatedAt:       redisstore.ParseTime(m["created_at"]),
		ExpiresAt:       redisstore.ParseTime(m["expires_at"]),
	}, nil
}

func (r *RedisRepository) Delete(ctx context.Context, ref string) error {
	return redisstore.Wrap(r.client.Del(ctx, r.key(ref)).Err())
}

// DeleteExpired is a no-op: keys carry their own TTL.
func (r *RedisRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}
