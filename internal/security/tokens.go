// Package security signs and validates the session tokens handed out on approved logins.
package security

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims holds JWT claims for a session token. The subject is the user id.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// TokenProvider issues and validates session JWTs. The algorithm follows the key type
// (RS256, ES256 or EdDSA) and validation accepts only that algorithm.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with privateKey. issuer and audience are set
// on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     jwt.GetSigningMethod(Algorithm(publicKey)),
		issuer:     issuer,
		audience:   audience,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// IssueSession signs a token for the session that expires with it.
func (p *TokenProvider) IssueSession(sessionID, userID, deviceID string, expiresAt time.Time) (string, error) {
	now := p.nowF()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		DeviceID:  deviceID,
	}
	if p.method == nil {
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(p.method, claims).SignedString(p.privateKey)
}

// ValidateSession parses and validates the token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateSession(tokenString string) (*SessionClaims, error) {
	if p.method == nil {
		return nil, ErrInvalidToken
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return p.publicKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
