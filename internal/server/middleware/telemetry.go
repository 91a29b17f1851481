package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"session-trust-engine/internal/telemetry"
)

// Telemetry emits an http_request event after each request. A nil emitter disables it.
// skipPaths are matched against the route pattern (e.g. /healthz).
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			pattern := routePattern(r)
			if emitter == nil || skipPaths[pattern] {
				return
			}
			userID, _ := GetUserID(r.Context())
			sessionID, _ := GetSessionID(r.Context())
			deviceID, _ := GetDeviceID(r.Context())
			event := telemetry.NewEvent(telemetry.EventHTTPRequest, userID, map[string]any{
				"method":      r.Method,
				"route":       pattern,
				"status_code": ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   ClientIPFromContext(r.Context()),
			}).WithSession(sessionID).WithDevice(deviceID)
			telemetry.EmitAsync(emitter, r.Context(), event)
		})
	}
}
