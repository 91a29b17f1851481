// Package httpx holds the JSON response and error helpers shared by the HTTP handlers.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"session-trust-engine/internal/apierror"
	"session-trust-engine/internal/challenge"
	"session-trust-engine/internal/device"
	"session-trust-engine/internal/login"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/session"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// Decode reads a JSON body into v. Decoding failures are reported as VAL_001.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		Error(w, r, apierror.Lookup(apierror.CodeInvalidInput).WithMessage("Request body is not valid JSON."))
		return false
	}
	return true
}

// Error writes d as the error envelope.
func Error(w http.ResponseWriter, r *http.Request, d *apierror.Details) {
	JSON(w, r, d.HTTPStatus, apierror.Envelope{Error: d})
}

// Fail maps err to catalog details and writes them. Server-side failures are logged.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	d := Details(err)
	if d.HTTPStatus >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	Error(w, r, d)
}

// Details maps domain sentinels to catalog entries and falls back to apierror.FromError.
func Details(err error) *apierror.Details {
	switch {
	case errors.Is(err, login.ErrInvalidInput),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, challenge.ErrInvalidChallenge):
		return apierror.Lookup(apierror.CodeMissingRequiredField).WithMessage(err.Error())
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return notFound("The verification challenge was not found. Please sign in again.")
	case errors.Is(err, login.ErrPendingLoginNotFound):
		return notFound("The pending login has expired. Please sign in again.")
	case errors.Is(err, session.ErrSessionNotFound):
		return notFound("Session not found.")
	case errors.Is(err, device.ErrDeviceNotFound):
		return notFound("Device not found.")
	case errors.Is(err, session.ErrForbidden):
		return apierror.Lookup(apierror.CodeInsufficientPermissions)
	case errors.Is(err, session.ErrSessionTerminated):
		return apierror.Lookup(apierror.CodeSessionTerminated)
	case errors.Is(err, session.ErrSessionExpired):
		return apierror.Lookup(apierror.CodeSessionExpired)
	case errors.Is(err, security.ErrTokenExpired):
		return apierror.Lookup(apierror.CodeTokenExpired)
	case errors.Is(err, security.ErrInvalidToken):
		return apierror.Lookup(apierror.CodeInvalidToken)
	case errors.Is(err, challenge.ErrDeliveryFailed):
		return apierror.Lookup(apierror.CodeServerError).
			WithMessage("We could not send your verification code. Please try again.").
			WithStatus(http.StatusBadGateway)
	default:
		return apierror.FromError(err)
	}
}

func notFound(msg string) *apierror.Details {
	return apierror.Lookup(apierror.CodeInvalidInput).WithMessage(msg).WithStatus(http.StatusNotFound)
}
