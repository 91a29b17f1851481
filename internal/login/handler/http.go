// Package handler exposes the login validator over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"session-trust-engine/internal/geo"
	"session-trust-engine/internal/login"
	"session-trust-engine/internal/server/httpx"
	"session-trust-engine/internal/server/middleware"
)

// Revoker ends sessions on behalf of a user.
type Revoker interface {
	TerminateOthers(ctx context.Context, userID, keepDeviceID string) (int, error)
}

// Handler serves /v1/login.
type Handler struct {
	validator *login.Validator
	revoker   Revoker
	geo       geo.Resolver
	logger    *slog.Logger
}

// NewHandler returns a login Handler. geoResolver may be nil; then only the edge header is used.
func NewHandler(validator *login.Validator, revoker Revoker, geoResolver geo.Resolver, logger *slog.Logger) *Handler {
	if geoResolver == nil {
		geoResolver = geo.HeaderResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{validator: validator, revoker: revoker, geo: geoResolver, logger: logger}
}

// Routes mounts the login endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/evaluate", h.Evaluate)
	r.Post("/challenge/verify", h.VerifyChallenge)
	r.Post("/too-many-devices/resolve", h.ResolveTooManyDevices)
	r.Post("/sessions/terminate-others", h.TerminateOthers)
}

type verifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type resolveRequest struct {
	login.Attempt
	TerminateOthers bool `json:"terminateOthers"`
}

type terminateOthersRequest struct {
	UserID       string `json:"userId"`
	KeepDeviceID string `json:"keepDeviceId"`
}

type terminatedResponse struct {
	TerminatedCount int `json:"terminatedCount"`
}

// Evaluate handles POST /v1/login/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var at login.Attempt
	if !httpx.Decode(w, r, &at) {
		return
	}
	h.fillContext(r, &at)
	out, err := h.validator.Evaluate(r.Context(), at)
	h.respond(w, r, out, err)
}

// VerifyChallenge handles POST /v1/login/challenge/verify.
func (h *Handler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ChallengeID) == "" || strings.TrimSpace(req.Code) == "" {
		httpx.Fail(w, r, h.logger, login.ErrInvalidInput)
		return
	}
	out, err := h.validator.ResolveChallenge(r.Context(), req.ChallengeID, strings.TrimSpace(req.Code))
	h.respond(w, r, out, err)
}

// ResolveTooManyDevices handles POST /v1/login/too-many-devices/resolve.
func (h *Handler) ResolveTooManyDevices(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	h.fillContext(r, &req.Attempt)
	out, err := h.validator.ResolveTooManyDevices(r.Context(), req.Attempt, req.TerminateOthers)
	h.respond(w, r, out, err)
}

// TerminateOthers handles POST /v1/login/sessions/terminate-others.
func (h *Handler) TerminateOthers(w http.ResponseWriter, r *http.Request) {
	var req terminateOthersRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		httpx.Fail(w, r, h.logger, login.ErrInvalidInput)
		return
	}
	n, err := h.revoker.TerminateOthers(r.Context(), req.UserID, req.KeepDeviceID)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, terminatedResponse{TerminatedCount: n})
}

// fillContext defaults ip and country from the request when the caller left them empty.
func (h *Handler) fillContext(r *http.Request, at *login.Attempt) {
	if strings.TrimSpace(at.IP) == "" {
		at.IP = middleware.ClientIPFromContext(r.Context())
		if at.IP == "" {
			at.IP = middleware.ClientIP(r)
		}
	}
	if strings.TrimSpace(at.UserAgent) == "" {
		at.UserAgent = r.UserAgent()
	}
	if strings.TrimSpace(at.Country) == "" {
		c, err := h.geo.Country(r.Context(), at.IP)
		if err != nil {
			h.logger.Warn("geo lookup failed", "ip", at.IP, "error", err)
		}
		at.Country = c
	}
	at.Country = geo.Normalize(at.Country)
}

// respond writes outcomes with 200; risk conditions travel inside the outcome, not as HTTP errors.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, out *login.Outcome, err error) {
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, out)
}
