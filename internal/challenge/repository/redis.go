package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/challenge/domain"
	"session-trust-engine/internal/platform/redisstore"
)

// retention keeps expired challenges readable for a while so callers see EXPIRED rather than not-found.
const retention = time.Hour

const maxWatchRetries = 16

// RedisRepository stores each challenge as a hash. Updates use WATCH/MULTI optimistic transactions.
type RedisRepository struct {
	client redis.UniversalClient
	keys   redisstore.Keyspace
}

// NewRedisRepository returns a challenge repository backed by Redis under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, keys: redisstore.Keyspace(prefix)}
}

func (r *RedisRepository) key(id string) string { return r.keys.Key("challenge", id) }
func (r *RedisRepository) expiryIndex() string  { return r.keys.Key("challenges", "by_expiry") }

func encodeChallenge(c *domain.Challenge) map[string]any {
	return map[string]any{
		"id":                  c.ID,
		"user_id":             c.UserID,
		"pending_session_ref": c.PendingSessionRef,
		"code_hash":           c.CodeHash,
		"created_at":          redisstore.FormatTime(c.CreatedAt),
		"expires_at":          redisstore.FormatTime(c.ExpiresAt),
		"attempts":            strconv.Itoa(c.Attempts),
		"consumed":            redisstore.FormatBool(c.Consumed),
	}
}

func decodeChallenge(m map[string]string) *domain.Challenge {
	if len(m) == 0 {
		return nil
	}
	attempts, _ := strconv.Atoi(m["attempts"])
	return &domain.Challenge{
		ID:                m["id"],
		UserID:            m["user_id"],
		PendingSessionRef: m["pending_session_ref"],
		CodeHash:          m["code_hash"],
		CreatedAt:         redisstore.ParseTime(m["created_at"]),
		ExpiresAt:         redisstore.ParseTime(m["expires_at"]),
		Attempts:          attempts,
		Consumed:          m["consumed"] == "1",
	}
}

// Create writes the challenge hash and indexes it by expiry.
func (r *RedisRepository) Create(ctx context.Context, c *domain.Challenge) error {
	key := r.key(c.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeChallenge(c))
		pipe.ExpireAt(ctx, key, c.ExpiresAt.Add(retention))
		pipe.ZAdd(ctx, r.expiryIndex(), redis.Z{Score: float64(c.ExpiresAt.UnixMilli()), Member: c.ID})
		return nil
	})
	return redisstore.Wrap(err)
}

// GetByID returns the challenge for id, or nil if not found.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	m, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	return decodeChallenge(m), nil
}

// Update watches the challenge key, applies fn and commits attempts/consumed in MULTI.
// A concurrent writer aborts the transaction and the read-modify-write is retried.
func (r *RedisRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Challenge, error) {
	key := r.key(id)
	for i := 0; i < maxWatchRetries; i++ {
		var out *domain.Challenge
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			m, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			c := decodeChallenge(m)
			if c == nil {
				return nil
			}
			out = c
			if !fn(c) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "attempts", strconv.Itoa(c.Attempts), "consumed", redisstore.FormatBool(c.Consumed))
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, redisstore.Wrap(err)
		}
		return out, nil
	}
	return nil, redisstore.Wrap(errors.New("challenge update contention"))
}

// DeleteExpired removes challenges indexed with an expiry before the given time.
func (r *RedisRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	maxScore := strconv.FormatInt(before.UnixMilli()-1, 10)
	ids, err := r.client.ZRangeByScore(ctx, r.expiryIndex(), &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, redisstore.Wrap(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
		members[i] = id
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, r.expiryIndex(), members...)
		return nil
	})
	if err != nil {
		return 0, redisstore.Wrap(err)
	}
	return len(ids), nil
}
