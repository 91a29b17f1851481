package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/device/domain"
	"session-trust-engine/internal/platform/redisstore"
)

// KEYS: fingerprint index, device hash, user device set.
// ARGV: id, user_id, fingerprint_hash, first_seen_at.
var createDeviceLua = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], "id", ARGV[1], "user_id", ARGV[2], "fingerprint_hash", ARGV[3],
  "trusted", "0", "trusted_at", "", "first_seen_at", ARGV[4], "last_seen_at", "")
redis.call("SADD", KEYS[3], ARGV[1])
return ARGV[1]
`)

// KEYS: device hash. ARGV: trusted_at.
var markTrustedLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "trusted") ~= "1" then
  redis.call("HSET", KEYS[1], "trusted", "1", "trusted_at", ARGV[1])
end
return 1
`)

// KEYS: device hash. ARGV: last_seen_at.
var touchDeviceLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "last_seen_at", ARGV[1])
end
return 1
`)

// RedisRepository stores each device as a hash with a per-user fingerprint index.
type RedisRepository struct {
	client redis.UniversalClient
	keys   redisstore.Keyspace
}

// NewRedisRepository returns a device repository backed by Redis under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, keys: redisstore.Keyspace(prefix)}
}

func (r *RedisRepository) deviceKey(id string) string { return r.keys.Key("device", id) }
func (r *RedisRepository) userSetKey(userID string) string {
	return r.keys.Key("user", userID, "devices")
}
func (r *RedisRepository) fingerprintKey(userID, fp string) string {
	return r.keys.Key("user", userID, "fp", fp)
}

func decodeDevice(m map[string]string) *domain.Device {
	if len(m) == 0 {
		return nil
	}
	return &domain.Device{
		ID:              m["id"],
		UserID:          m["user_id"],
		FingerprintHash: m["fingerprint_hash"],
		Trusted:         m["trusted"] == "1",
		TrustedAt:       redisstore.ParseTimePtr(m["trusted_at"]),
		FirstSeenAt:     redisstore.ParseTime(m["first_seen_at"]),
		LastSeenAt:      redisstore.ParseTimePtr(m["last_seen_at"]),
	}
}

// GetByID returns the device for id, or nil if not found.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	m, err := r.client.HGetAll(ctx, r.deviceKey(id)).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	return decodeDevice(m), nil
}

// GetByUserAndFingerprint resolves the fingerprint index and loads the device, or nil if not found.
func (r *RedisRepository) GetByUserAndFingerprint(ctx context.Context, userID, fingerprintHash string) (*domain.Device, error) {
	id, err := r.client.Get(ctx, r.fingerprintKey(userID, fingerprintHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	return r.GetByID(ctx, id)
}

// ListByUser returns the user's devices ordered by first sighting.
func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	ids, err := r.client.SMembers(ctx, r.userSetKey(userID)).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	out := make([]*domain.Device, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}

// CreateIfAbsent atomically claims the fingerprint index for d or returns the device already holding it.
func (r *RedisRepository) CreateIfAbsent(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	keys := []string{r.fingerprintKey(d.UserID, d.FingerprintHash), r.deviceKey(d.ID), r.userSetKey(d.UserID)}
	id, err := createDeviceLua.Run(ctx, r.client, keys, d.ID, d.UserID, d.FingerprintHash, redisstore.FormatTime(d.FirstSeenAt)).Text()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.New("device index points at missing hash")
	}
	return stored, nil
}

// MarkTrusted sets trusted once. Returns false if the device does not exist.
func (r *RedisRepository) MarkTrusted(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := markTrustedLua.Run(ctx, r.client, []string{r.deviceKey(id)}, redisstore.FormatTime(at)).Int()
	if err != nil {
		return false, redisstore.Wrap(err)
	}
	return n == 1, nil
}

// UpdateLastSeen sets last_seen_at on an existing device.
func (r *RedisRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return redisstore.Wrap(touchDeviceLua.Run(ctx, r.client, []string{r.deviceKey(id)}, redisstore.FormatTime(at)).Err())
}
