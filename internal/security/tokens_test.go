package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	exp := time.Now().UTC().Add(time.Hour)
	token, err := p.IssueSession("s1", "u1", "d1", exp)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" {
		t.Fatal("token empty")
	}

	claims, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.SessionID != "s1" || claims.Subject != "u1" || claims.DeviceID != "d1" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ExpiresAt.Unix() != exp.Unix() {
		t.Errorf("exp = %v, want %v", claims.ExpiresAt.Time, exp)
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, err := p.IssueSession("s1", "u1", "d1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	p.nowF = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := p.ValidateSession(token); err != ErrTokenExpired {
		t.Errorf("ValidateSession after exp: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenProvider_Invalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.ValidateSession("invalid-token"); err != ErrInvalidToken {
		t.Errorf("malformed: want ErrInvalidToken, got %v", err)
	}

	token, err := p.IssueSession("s1", "u1", "d1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := p.ValidateSession(tampered); err != ErrInvalidToken {
		t.Errorf("tampered signature: want ErrInvalidToken, got %v", err)
	}

	other := NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", "session-trust-clients")
	if _, err := other.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
	other = NewTokenProvider(p.privateKey, p.publicKey, "session-trust-test", "other-audience")
	if _, err := other.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(key, key.Public(), "iss", "aud")
	token, err := p.IssueSession("s1", "u1", "d1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	claims, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", claims.SessionID)
	}
}

func TestTokenProvider_RejectsOtherAlgorithm(t *testing.T) {
	ed, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	es := NewTokenProvider(key, key.Public(), "session-trust-test", "session-trust-clients")
	token, err := es.IssueSession("s1", "u1", "d1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := ed.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("ES256 token on EdDSA provider: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_UnsupportedKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(key, key.Public(), "iss", "aud")
	if _, err := p.IssueSession("s1", "u1", "d1", time.Now().Add(time.Hour)); err != ErrInvalidToken {
		t.Errorf("P-384 key: want ErrInvalidToken, got %v", err)
	}
}
