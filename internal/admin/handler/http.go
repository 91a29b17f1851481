// Package handler exposes operator actions over HTTP: session search, forced termination,
// device trust and the require-OTP flag. Routes are mounted behind admin authentication.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"session-trust-engine/internal/apierror"
	auditdomain "session-trust-engine/internal/audit/domain"
	"session-trust-engine/internal/device"
	devicedomain "session-trust-engine/internal/device/domain"
	"session-trust-engine/internal/server/httpx"
	"session-trust-engine/internal/session"
	"session-trust-engine/internal/session/domain"
)

// AuditReader lists a user's audit trail.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*auditdomain.AuditLog, error)
}

// OTPFlagger sets the require-OTP flag for a user's next login.
type OTPFlagger interface {
	RequireOTP(ctx context.Context, userID string) error
}

// Handler serves /v1/admin.
type Handler struct {
	sessions   *session.Store
	revocation *session.RevocationService
	devices    *device.Registry
	flags      OTPFlagger
	audit      AuditReader
	logger     *slog.Logger
}

// NewHandler returns an admin Handler. auditReader may be nil; then the audit route answers 404.
func NewHandler(sessions *session.Store, revocation *session.RevocationService, devices *device.Registry, flags OTPFlagger, auditReader AuditReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:   sessions,
		revocation: revocation,
		devices:    devices,
		flags:      flags,
		audit:      auditReader,
		logger:     logger,
	}
}

// Routes mounts the admin endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sessions", h.SearchSessions)
	r.Post("/sessions/{id}/terminate", h.TerminateSession)
	r.Post("/users/{userId}/require-otp", h.RequireOTP)
	r.Post("/users/{userId}/terminate-all", h.TerminateAll)
	r.Get("/users/{userId}/devices", h.ListDevices)
	r.Get("/users/{userId}/audit", h.ListAudit)
	r.Post("/devices/{deviceId}/trust", h.TrustDevice)
}

type sessionListing struct {
	*domain.Session
	Suspicious bool `json:"suspicious"`
}

// SearchSessions handles GET /v1/admin/sessions?userId&active&from&to&suspicious&limit&offset.
// from and to are RFC 3339 bounds on login time.
func (h *Handler) SearchSessions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.Error(w, r, apierror.Lookup(apierror.CodeInvalidInput).WithMessage(err.Error()))
		return
	}
	found, err := h.sessions.Search(r.Context(), f)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	out := make([]sessionListing, 0, len(found))
	for _, l := range found {
		out = append(out, sessionListing{Session: l.Session, Suspicious: l.Suspicious})
	}
	httpx.JSON(w, r, http.StatusOK, out)
}

// TerminateSession handles POST /v1/admin/sessions/{id}/terminate.
func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.revocation.TerminateSession(r.Context(), chi.URLParam(r, "id"), "", true); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]bool{"terminated": true})
}

// RequireOTP handles POST /v1/admin/users/{userId}/require-otp.
func (h *Handler) RequireOTP(w http.ResponseWriter, r *http.Request) {
	if err := h.flags.RequireOTP(r.Context(), chi.URLParam(r, "userId")); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// TerminateAll handles POST /v1/admin/users/{userId}/terminate-all.
func (h *Handler) TerminateAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.revocation.TerminateAll(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]int{"terminatedCount": n})
}

// ListDevices handles GET /v1/admin/users/{userId}/devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	list, err := h.devices.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*devicedomain.Device{}
	}
	httpx.JSON(w, r, http.StatusOK, list)
}

// ListAudit handles GET /v1/admin/users/{userId}/audit?limit&offset.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		httpx.Error(w, r, apierror.Lookup(apierror.CodeInvalidInput).WithMessage("Audit log is not available.").WithStatus(http.StatusNotFound))
		return
	}
	limit, offset := 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	entries, err := h.audit.ListByUser(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*auditdomain.AuditLog{}
	}
	httpx.JSON(w, r, http.StatusOK, entries)
}

// TrustDevice handles POST /v1/admin/devices/{deviceId}/trust and returns the updated device.
func (h *Handler) TrustDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	if err := h.devices.MarkTrusted(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	d, err := h.devices.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, d)
}

func parseFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	f := domain.Filter{UserID: strings.TrimSpace(q.Get("userId"))}
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidParam("active")
		}
		f.Active = &b
	}
	if v := q.Get("suspicious"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidParam("suspicious")
		}
		f.Suspicious = b
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, errInvalidParam(p.name)
			}
			*p.dst = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidParam("limit")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidParam("offset")
		}
		f.Offset = n
	}
	return f, nil
}

type paramError string

func (e paramError) Error() string { return "Invalid query parameter: " + string(e) + "." }

func errInvalidParam(name string) error { return paramError(name) }
