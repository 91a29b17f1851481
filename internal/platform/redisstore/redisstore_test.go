package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyspace_Key(t *testing.T) {
	if got := Keyspace("st").Key("session", "abc"); got != "st:session:abc" {
		t.Errorf("Key = %q, want st:session:abc", got)
	}
	if got := Keyspace("").Key("session", "abc"); got != "session:abc" {
		t.Errorf("Key = %q, want session:abc", got)
	}
}

func TestKeyspace_KeyEscapesParts(t *testing.T) {
	ks := Keyspace("st")
	a := ks.Key("user", "alice:fp", "active")
	b := ks.Key("user", "alice", "fp:active")
	if a == b {
		t.Fatalf("ids with ':' collided on %q", a)
	}
	if a != "st:user:alice%3Afp:active" {
		t.Errorf("Key = %q, want st:user:alice%%3Afp:active", a)
	}
	if got := ks.Key("user", "50%3Aoff"); got != "st:user:50%253Aoff" {
		t.Errorf("Key = %q, want st:user:50%%253Aoff", got)
	}
	if ks.Key("user", "a%3Ab") == ks.Key("user", "a:b") {
		t.Error("escaped and literal ':' collided")
	}
}

func TestEscapeLua_MatchesEscapePart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	script := redis.NewScript(EscapeLua + `return esc(ARGV[1])`)
	for _, in := range []string{"plain", "a:b", "100%", "%3A", "::%%", ""} {
		got, err := script.Run(context.Background(), client, nil, in).Text()
		if err != nil {
			t.Fatalf("script(%q): %v", in, err)
		}
		if got != EscapePart(in) {
			t.Errorf("esc(%q) = %q, want %q", in, got, EscapePart(in))
		}
	}
}

func TestTimeEncoding(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if got := ParseTime(FormatTime(now)); !got.Equal(now) {
		t.Errorf("ParseTime(FormatTime(now)) = %v, want %v", got, now)
	}
	if FormatTime(time.Time{}) != "" {
		t.Error("zero time should encode as empty string")
	}
	if ParseTimePtr("") != nil {
		t.Error("ParseTimePtr(\"\") should be nil")
	}
	if !ParseTime("garbage").IsZero() {
		t.Error("malformed input should decode to zero time")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if !errors.Is(Wrap(redis.Nil), redis.Nil) || errors.Is(Wrap(redis.Nil), ErrUnavailable) {
		t.Error("redis.Nil should pass through unwrapped")
	}
	if !errors.Is(Wrap(errors.New("dial tcp: refused")), ErrUnavailable) {
		t.Error("transport errors should wrap ErrUnavailable")
	}
}

func TestOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer client.Close()

	if _, err := Open(context.Background(), "not a url"); err == nil {
		t.Error("Open with invalid url should fail")
	}
}
