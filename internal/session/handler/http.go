// Package handler exposes session listing, termination and heartbeat over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"session-trust-engine/internal/apierror"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/server/httpx"
	"session-trust-engine/internal/server/middleware"
	"session-trust-engine/internal/session"
	"session-trust-engine/internal/session/domain"
)

// Handler serves /v1/sessions.
type Handler struct {
	store      *session.Store
	revocation *session.RevocationService
	tokens     middleware.SessionValidator
	logger     *slog.Logger
}

// NewHandler returns a session Handler. Without tokens the heartbeat route answers AUTH_004.
func NewHandler(store *session.Store, revocation *session.RevocationService, tokens middleware.SessionValidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, revocation: revocation, tokens: tokens, logger: logger}
}

// Routes mounts the session endpoints on r. serviceAuth guards the routes called by
// the upstream auth service; heartbeat and logout authenticate with the session token.
func (h *Handler) Routes(r chi.Router, serviceAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(serviceAuth)
		r.Get("/", h.List)
		r.Post("/{id}/terminate", h.Terminate)
	})
	r.Post("/heartbeat", h.Heartbeat)
	r.With(middleware.SessionAuth(h.tokens, h.logger)).Post("/logout", h.Logout)
}

type terminateRequest struct {
	RequestingUserID string `json:"requestingUserId"`
}

type terminateResponse struct {
	Terminated bool `json:"terminated"`
}

type heartbeatResponse struct {
	Session *domain.Session `json:"session"`
}

// List handles GET /v1/sessions?userId=. It returns active and recently ended sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		httpx.Error(w, r, apierror.Lookup(apierror.CodeMissingRequiredField).WithMessage("userId is required."))
		return
	}
	list, err := h.store.List(r.Context(), userID)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*domain.Session{}
	}
	httpx.JSON(w, r, http.StatusOK, list)
}

// Terminate handles POST /v1/sessions/{id}/terminate. Only the owner may end a session here.
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RequestingUserID) == "" {
		httpx.Error(w, r, apierror.Lookup(apierror.CodeMissingRequiredField).WithMessage("requestingUserId is required."))
		return
	}
	if err := h.revocation.TerminateSession(r.Context(), chi.URLParam(r, "id"), req.RequestingUserID, false); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, terminateResponse{Terminated: true})
}

// Heartbeat handles POST /v1/sessions/heartbeat for the session named by the bearer token.
// A session ended elsewhere answers SESS_003, one past its lifetime SESS_007. Session tokens
// expire with their session, so an expired token is reported as SESS_007 too.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" || h.tokens == nil {
		httpx.Error(w, r, apierror.Lookup(apierror.CodeInvalidToken))
		return
	}
	claims, err := h.tokens.ValidateSession(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			err = session.ErrSessionExpired
		}
		httpx.Fail(w, r, h.logger, err)
		return
	}
	sess, err := h.store.Touch(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			err = session.ErrSessionTerminated
		}
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, heartbeatResponse{Session: sess})
}

// Logout handles POST /v1/sessions/logout and ends the caller's own session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := middleware.GetSessionID(r.Context())
	if err := h.store.Terminate(r.Context(), sessionID); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, terminateResponse{Terminated: true})
}
