package repository

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/platform/redisstore"
	"session-trust-engine/internal/session/domain"
)

// KEYS: user active set, new session hash, user session zset, global by-login zset.
// ARGV: session key prefix, now, max active, login score, session id, then hash field/value pairs.
var admitSessionLua = redis.NewScript(redisstore.EscapeLua + `
local now = tonumber(ARGV[2])
for _, sid in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local k = ARGV[1] .. esc(sid)
  local exp = tonumber(redis.call("HGET", k, "expires_at"))
  if (not exp) or exp <= now then
    if redis.call("EXISTS", k) == 1 then
      redis.call("HSET", k, "active", "0", "terminated_at", ARGV[2], "termination_reason", "expired")
    end
    redis.call("SREM", KEYS[1], sid)
  end
end
if redis.call("SCARD", KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 6))
redis.call("SADD", KEYS[1], ARGV[5])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[5])
redis.call("ZADD", KEYS[4], ARGV[4], ARGV[5])
return 1
`)

// KEYS: session hash. ARGV: reason, terminated_at, user key prefix, active set suffix.
// Returns -1 when the session does not exist, 0 when already inactive, 1 when flipped.
var terminateSessionLua = redis.NewScript(redisstore.EscapeLua + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "active", "0", "terminated_at", ARGV[2], "termination_reason", ARGV[1])
local uid = redis.call("HGET", KEYS[1], "user_id")
redis.call("SREM", ARGV[3] .. esc(uid) .. ARGV[4], redis.call("HGET", KEYS[1], "id"))
return 1
`)

// KEYS: session hash. ARGV: last_active_at.
var touchSessionLua = redis.NewScript(`
if redis.call("HGET", KEYS[1], "active") == "1" then
  redis.call("HSET", KEYS[1], "last_active_at", ARGV[1])
end
return 1
`)

// RedisRepository stores each session as a hash. A per-user set holds the ids of active sessions and is
// the admission counter; admission and termination run as Lua scripts so each is atomic on the server.
// The scripts touch keys derived at runtime, so this layout assumes a single Redis node rather than a cluster.
type RedisRepository struct {
	client redis.UniversalClient
	keys   redisstore.Keyspace
}

// NewRedisRepository returns a session repository backed by Redis under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{client: client, keys: redisstore.Keyspace(prefix)}
}

func (r *RedisRepository) sessionKey(id string) string { return r.keys.Key("session", id) }
func (r *RedisRepository) activeKey(userID string) string {
	return r.keys.Key("user", userID, "active")
}
func (r *RedisRepository) userIndexKey(userID string) string {
	return r.keys.Key("user", userID, "sessions")
}
func (r *RedisRepository) loginIndexKey() string { return r.keys.Key("sessions", "by_login") }

func encodeSession(s *domain.Session) []any {
	return []any{
		"id", s.ID,
		"user_id", s.UserID,
		"device_id", s.DeviceID,
		"ip", s.IP,
		"country", s.Country,
		"user_agent", s.UserAgent,
		"login_time", redisstore.FormatTime(s.LoginTime),
		"last_active_at", redisstore.FormatTime(s.LastActiveAt),
		"expires_at", redisstore.FormatTime(s.ExpiresAt),
		"active", redisstore.FormatBool(s.Active),
		"terminated_at", redisstore.FormatTimePtr(s.TerminatedAt),
		"termination_reason", string(s.TerminationReason),
	}
}

func decodeSession(m map[string]string) *domain.Session {
	if len(m) == 0 {
		return nil
	}
	return &domain.Session{
		ID:                m["id"],
		UserID:            m["user_id"],
		DeviceID:          m["device_id"],
		IP:                m["ip"],
		Country:           m["country"],
		UserAgent:         m["user_agent"],
		LoginTime:         redisstore.ParseTime(m["login_time"]),
		LastActiveAt:      redisstore.ParseTime(m["last_active_at"]),
		ExpiresAt:         redisstore.ParseTime(m["expires_at"]),
		Active:            m["active"] == "1",
		TerminatedAt:      redisstore.ParseTimePtr(m["terminated_at"]),
		TerminationReason: domain.TerminationReason(m["termination_reason"]),
	}
}

// GetByID returns the session for id, or nil if not found.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	return decodeSession(m), nil
}

// load fetches the given ids in one pipeline, skipping ids whose hash is gone.
func (r *RedisRepository) load(ctx context.Context, ids []string) ([]*domain.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, r.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	out := make([]*domain.Session, 0, len(ids))
	for _, cmd := range cmds {
		if s := decodeSession(cmd.Val()); s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListByUser returns every session of the user, newest login first.
func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.Search(ctx, domain.Filter{UserID: userID})
}

// Search returns sessions matching f, newest login first.
func (r *RedisRepository) Search(ctx context.Context, f domain.Filter) ([]*domain.Session, error) {
	index := r.loginIndexKey()
	if f.UserID != "" {
		index = r.userIndexKey(f.UserID)
	}
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if f.From != nil {
		rng.Min = strconv.FormatInt(f.From.UnixMilli(), 10)
	}
	if f.To != nil {
		rng.Max = strconv.FormatInt(f.To.UnixMilli(), 10)
	}
	ids, err := r.client.ZRevRangeByScore(ctx, index, rng).Result()
	if err != nil {
		return nil, redisstore.Wrap(err)
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if matches(s, f) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	return paginate(out, f.Limit, f.Offset), nil
}

// CountActive returns the number of live sessions of the user at now.
func (r *RedisRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	ids, err := r.client.SMembers(ctx, r.activeKey(userID)).Result()
	if err != nil {
		return 0, redisstore.Wrap(err)
	}
	sessions, err := r.load(ctx, ids)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range sessions {
		if s.LiveAt(now) {
			n++
		}
	}
	return n, nil
}

// Admit runs the admission script: expire stale members of the active set, check its size, insert s.
func (r *RedisRepository) Admit(ctx context.Context, s *domain.Session, maxActive int, now time.Time) (bool, error) {
	stored := s.Clone()
	stored.Active = true
	keys := []string{
		r.activeKey(s.UserID),
		r.sessionKey(s.ID),
		r.userIndexKey(s.UserID),
		r.loginIndexKey(),
	}
	args := []any{
		r.keys.Key("session", ""),
		redisstore.FormatTime(now),
		maxActive,
		s.LoginTime.UnixMilli(),
		s.ID,
	}
	args = append(args, encodeSession(stored)...)
	n, err := admitSessionLua.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, redisstore.Wrap(err)
	}
	return n == 1, nil
}

// Terminate flips the session to inactive once and removes it from the user's active set.
func (r *RedisRepository) Terminate(ctx context.Context, id string, reason domain.TerminationReason, at time.Time) (bool, bool, error) {
	n, err := terminateSessionLua.Run(ctx, r.client, []string{r.sessionKey(id)},
		string(reason), redisstore.FormatTime(at), r.keys.Key("user", ""), ":active").Int()
	if err != nil {
		return false, false, redisstore.Wrap(err)
	}
	switch n {
	case -1:
		return false, false, nil
	case 0:
		return true, false, nil
	default:
		return true, true, nil
	}
}

// UpdateLastActive sets last_active_at on an active session.
func (r *RedisRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return redisstore.Wrap(touchSessionLua.Run(ctx, r.client, []string{r.sessionKey(id)}, redisstore.FormatTime(at)).Err())
}
