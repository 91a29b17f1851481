package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"session-trust-engine/internal/apierror"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/server/httpx"
)

const bearerPrefix = "bearer "

// ServiceKeyHeader carries the shared key of the upstream auth service.
const ServiceKeyHeader = "X-Service-Key"

// SessionValidator validates a bearer session token.
type SessionValidator interface {
	ValidateSession(token string) (*security.SessionClaims, error)
}

// SessionAuth requires a valid session token and stores the caller's identity on the context.
// Expired tokens answer AUTH_003, anything else AUTH_004.
func SessionAuth(tokens SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" || tokens == nil {
				httpx.Error(w, r, apierror.Lookup(apierror.CodeInvalidToken))
				return
			}
			claims, err := tokens.ValidateSession(token)
			if err != nil {
				httpx.Fail(w, r, logger, err)
				return
			}
			ctx := WithIdentity(r.Context(), claims.Subject, claims.SessionID, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth requires "Authorization: Bearer <key>". An empty key rejects every request.
func AdminAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if key == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				httpx.Error(w, r, apierror.Lookup(apierror.CodeInsufficientPermissions))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ServiceAuth requires the ServiceKeyHeader to match key and answers AUTH_004 otherwise.
// An empty key rejects every request.
func ServiceAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := strings.TrimSpace(r.Header.Get(ServiceKeyHeader))
			if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				httpx.Error(w, r, apierror.Lookup(apierror.CodeInvalidToken))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the Bearer token from the Authorization header, or "" if missing or malformed.
func BearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
