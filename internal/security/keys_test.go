package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func ecPEM(t *testing.T, curve elliptic.Curve) (priv, pub string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})),
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
}

func TestLoadPEM(t *testing.T) {
	if _, err := LoadPEM("   "); err != ErrInvalidKey {
		t.Errorf("blank: want ErrInvalidKey, got %v", err)
	}
	if _, err := LoadPEM("/nonexistent/session-trust/key.pem"); err == nil {
		t.Error("missing file should return error")
	}

	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	escaped := strings.ReplaceAll(priv, "\n", `\n`)
	got, err := LoadPEM(escaped)
	if err != nil {
		t.Fatalf("LoadPEM escaped: %v", err)
	}
	if string(got) != priv {
		t.Error("literal \\n should be expanded to newlines")
	}

	path := filepath.Join(t.TempDir(), "jwt.pem")
	if err := os.WriteFile(path, []byte(priv), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Errorf("ParsePrivateKey(file): %v", err)
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	for _, in := range []string{
		"-----BEGIN nothing",
		"-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----",
	} {
		if _, err := ParsePrivateKey(in); err == nil {
			t.Errorf("ParsePrivateKey(%q) should fail", in)
		}
		if _, err := ParsePublicKey(in); err == nil {
			t.Errorf("ParsePublicKey(%q) should fail", in)
		}
	}
}

func TestLoadKeyPair(t *testing.T) {
	edPriv, edPub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if _, pub, err := LoadKeyPair(edPriv, edPub); err != nil || Algorithm(pub) != AlgEdDSA {
		t.Errorf("Ed25519 pair: alg=%q err=%v", Algorithm(pub), err)
	}

	ecPriv, ecPub := ecPEM(t, elliptic.P256())
	if _, pub, err := LoadKeyPair(ecPriv, ecPub); err != nil || Algorithm(pub) != AlgES256 {
		t.Errorf("P-256 pair: alg=%q err=%v", Algorithm(pub), err)
	}

	if _, _, err := LoadKeyPair(edPriv, ecPub); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("mismatched pair: want ErrInvalidKey, got %v", err)
	}

	p384Priv, p384Pub := ecPEM(t, elliptic.P384())
	if _, _, err := LoadKeyPair(p384Priv, p384Pub); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("P-384 pair: want ErrInvalidKey, got %v", err)
	}
}

func TestAlgorithm_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if got := Algorithm(&key.PublicKey); got != AlgRS256 {
		t.Errorf("Algorithm(rsa) = %q, want RS256", got)
	}
	if got := Algorithm("not a key"); got != "" {
		t.Errorf("Algorithm(string) = %q, want empty", got)
	}
}
