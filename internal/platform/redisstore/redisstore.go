// Package redisstore holds the Redis client setup and key/timestamp helpers shared by the Redis-backed repositories.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures so callers can map them to a retryable error.
var ErrUnavailable = errors.New("redis unavailable")

// Open parses a redis:// URL, connects and pings. Caller must Close the client.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}

// Keyspace builds namespaced keys of the form prefix:part1:part2.
type Keyspace string

var partEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// EscapePart percent-encodes '%' and ':' in a key part so caller-supplied ids cannot
// reach into a neighbouring key. EscapeLua mirrors it for keys built inside scripts.
func EscapePart(p string) string { return partEscaper.Replace(p) }

// EscapeLua defines a Lua function esc matching EscapePart, for scripts that derive keys from stored ids.
const EscapeLua = `local function esc(s) return (string.gsub(string.gsub(s, "%%", "%%25"), ":", "%%3A")) end
`

// Key joins escaped parts under the keyspace prefix.
func (k Keyspace) Key(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = EscapePart(p)
	}
	if k == "" {
		return strings.Join(escaped, ":")
	}
	return string(k) + ":" + strings.Join(escaped, ":")
}

// Wrap marks err as a backend failure. redis.Nil and nil pass through unchanged.
func Wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// FormatTime encodes t as unix milliseconds; the zero time encodes as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// FormatTimePtr is FormatTime for optional timestamps.
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// ParseTime decodes a FormatTime value. Empty or malformed input yields the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ParseTimePtr decodes an optional timestamp; empty input yields nil.
func ParseTimePtr(s string) *time.Time {
	t := ParseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// FormatBool encodes b as "1" or "0".
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
