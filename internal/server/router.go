// Package server assembles the HTTP API and the gRPC health endpoint.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	adminhandler "session-trust-engine/internal/admin/handler"
	"session-trust-engine/internal/devotp"
	"session-trust-engine/internal/engine"
	"session-trust-engine/internal/geo"
	healthhandler "session-trust-engine/internal/health/handler"
	loginhandler "session-trust-engine/internal/login/handler"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/server/middleware"
	sessionhandler "session-trust-engine/internal/session/handler"
	"session-trust-engine/internal/telemetry"
)

// Deps holds what the HTTP routes need. Only Engine is required.
type Deps struct {
	Engine *engine.Engine
	// Tokens validates session tokens for heartbeat and logout. If nil, those routes answer AUTH_004.
	Tokens middleware.SessionValidator
	// Geo resolves the login country when the request body has none.
	Geo geo.Resolver
	// CountryHeader is the edge header carrying the client country (e.g. CF-IPCountry).
	CountryHeader string
	// Health backs /healthz and /readyz. If nil, readiness always succeeds.
	Health *healthhandler.Checker
	// Metrics is served at /metrics.
	Metrics *metrics.Recorder
	// Events receives one http_request event per API call.
	Events telemetry.EventEmitter
	// AdminAPIKey guards /v1/admin. Empty rejects every admin request.
	AdminAPIKey string
	// ServiceAPIKey guards /v1/login and the session list and terminate routes.
	// Empty rejects every such request.
	ServiceAPIKey string
	// DevOTP, when set, exposes GET /v1/dev/otp/{challengeID}. Never set in production.
	DevOTP devotp.Store
	Logger *slog.Logger
}

var telemetrySkip = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// NewRouter returns the HTTP handler for the engine API.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checker := d.Health
	if checker == nil {
		checker = healthhandler.NewChecker(nil, nil)
	}
	e := d.Engine

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientAddr(d.CountryHeader))
	r.Use(middleware.Telemetry(d.Events, telemetrySkip))

	r.Get("/healthz", checker.Liveness)
	r.Get("/readyz", checker.Readiness)
	r.Handle("/metrics", d.Metrics.Handler())

	serviceAuth := middleware.ServiceAuth(d.ServiceAPIKey)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/login", func(r chi.Router) {
			r.Use(serviceAuth)
			loginhandler.NewHandler(e.Validator, e.Revocation, d.Geo, logger).Routes(r)
		})
		r.Route("/sessions", func(r chi.Router) {
			sessionhandler.NewHandler(e.Sessions, e.Revocation, d.Tokens, logger).Routes(r, serviceAuth)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(d.AdminAPIKey))
			r.Use(middleware.Audit(e.Audit))
			adminhandler.NewHandler(e.Sessions, e.Revocation, e.Devices, e.Risk, e.Repos.Audit, logger).Routes(r)
		})
		if d.DevOTP != nil {
			r.Mount("/dev/otp", devotp.Handler(d.DevOTP))
		}
	})
	return r
}
