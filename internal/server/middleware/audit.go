package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"session-trust-engine/internal/audit"
)

type requestAudit struct {
	Route  string `json:"route"`
	Status int    `json:"status"`
}

// Audit records one audit entry per mutating request after the handler ran. The user is the
// authenticated caller or the {userId} route parameter. Reads are not audited.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if logger == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				return
			}
			pattern := routePattern(r)
			userID, _ := GetUserID(r.Context())
			if userID == "" {
				userID = chi.URLParam(r, "userId")
			}
			ar := audit.ParseRoute(r.Method, pattern)
			meta, _ := json.Marshal(requestAudit{Route: pattern, Status: ww.Status()})
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, string(meta))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
