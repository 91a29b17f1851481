// Package apierror is the catalog of user-facing error details returned by the HTTP API.
package apierror

import (
	"context"
	"errors"
	"net/http"
)

// Code identifies a catalog entry, e.g. SESS_004.
type Code string

const (
	CodeInvalidCredentials      Code = "AUTH_001"
	CodeAccountLocked           Code = "AUTH_002"
	CodeTokenExpired            Code = "AUTH_003"
	CodeInvalidToken            Code = "AUTH_004"
	CodeMultipleActiveSessions  Code = "SESS_001"
	CodeSuspiciousLocation      Code = "SESS_002"
	CodeSessionTerminated       Code = "SESS_003"
	CodeNewDevice               Code = "SESS_004"
	CodeOTPRequired             Code = "SESS_005"
	CodeMaxDevicesReached       Code = "SESS_006"
	CodeSessionExpired          Code = "SESS_007"
	CodeConnectionFailed        Code = "NET_001"
	CodeRequestTimeout          Code = "NET_002"
	CodeServerError             Code = "NET_003"
	CodeInvalidInput            Code = "VAL_001"
	CodeMissingRequiredField    Code = "VAL_002"
	CodeInsufficientPermissions Code = "PERM_001"
	CodeRoleRestricted          Code = "PERM_002"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategorySession        Category = "session"
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryPermission     Category = "permission"
)

// Details is the error object carried by every non-approved response.
type Details struct {
	Code        Code     `json:"code"`
	Name        string   `json:"name"`
	Message     string   `json:"message"`
	Action      string   `json:"action"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
	Category    Category `json:"category"`
	HTTPStatus  int      `json:"-"`
}

// Envelope is the JSON body of an error response.
type Envelope struct {
	Error *Details `json:"error"`
}

var catalog = map[Code]Details{
	CodeInvalidCredentials: {
		Name:        "INVALID_CREDENTIALS",
		Message:     "The username or password you entered is incorrect.",
		Action:      "Please check your credentials and try again.",
		Severity:    SeverityError,
		Recoverable: true,
		Category:    CategoryAuthentication,
		HTTPStatus:  http.StatusUnauthorized,
	},
	CodeAccountLocked: {
		Name:       "ACCOUNT_LOCKED",
		Message:    "Your account has been locked due to multiple failed login attempts.",
		Action:     "Please contact support to unlock your account.",
		Severity:   SeverityError,
		Category:   CategoryAuthentication,
		HTTPStatus: http.StatusLocked,
	},
	CodeTokenExpired: {
		Name:        "TOKEN_EXPIRED",
		Message:     "Your session has expired.",
		Action:      "Please log in again to continue.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategoryAuthentication,
		HTTPStatus:  http.StatusUnauthorized,
	},
	CodeInvalidToken: {
		Name:        "INVALID_TOKEN",
		Message:     "Your authentication token is invalid.",
		Action:      "Please log in again to continue.",
		Severity:    SeverityError,
		Recoverable: true,
		Category:    CategoryAuthentication,
		HTTPStatus:  http.StatusUnauthorized,
	},
	CodeMultipleActiveSessions: {
		Name:        "MULTIPLE_ACTIVE_SESSIONS",
		Message:     "You are already logged in from another device.",
		Action:      `Log out from the other device or choose "Log Out Other Devices" to continue with this session.`,
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusConflict,
	},
	CodeSuspiciousLocation: {
		Name:        "SUSPICIOUS_LOCATION",
		Message:     "We detected a login attempt from an unusual location.",
		Action:      "Verify your identity to continue or contact support if you didn't attempt to log in.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusForbidden,
	},
	CodeSessionTerminated: {
		Name:        "SESSION_TERMINATED",
		Message:     "Your session was terminated from another device.",
		Action:      "Please log in again to continue. If you didn't terminate your session, consider changing your password.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusUnauthorized,
	},
	CodeNewDevice: {
		Name:        "NEW_DEVICE",
		Message:     "We detected a login attempt from a new device.",
		Action:      "Verify your identity to continue using this new device.",
		Severity:    SeverityInfo,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusForbidden,
	},
	CodeOTPRequired: {
		Name:        "OTP_REQUIRED",
		Message:     "Additional verification is required for your security.",
		Action:      "Please enter the verification code sent to your email or mobile device.",
		Severity:    SeverityInfo,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusForbidden,
	},
	CodeMaxDevicesReached: {
		Name:        "MAX_DEVICES_REACHED",
		Message:     "You have reached the maximum number of allowed devices.",
		Action:      "Please remove an existing device from your account settings before adding a new one.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusConflict,
	},
	CodeSessionExpired: {
		Name:        "SESSION_EXPIRED",
		Message:     "Your session has expired due to inactivity.",
		Action:      "Please log in again to continue.",
		Severity:    SeverityInfo,
		Recoverable: true,
		Category:    CategorySession,
		HTTPStatus:  http.StatusUnauthorized,
	},
	CodeConnectionFailed: {
		Name:        "CONNECTION_FAILED",
		Message:     "Unable to connect to the server.",
		Action:      "Please check your internet connection and try again.",
		Severity:    SeverityError,
		Recoverable: true,
		Category:    CategoryNetwork,
		HTTPStatus:  http.StatusServiceUnavailable,
	},
	CodeRequestTimeout: {
		Name:        "REQUEST_TIMEOUT",
		Message:     "The request timed out.",
		Action:      "Please try again. If the problem persists, contact support.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategoryNetwork,
		HTTPStatus:  http.StatusGatewayTimeout,
	},
	CodeServerError: {
		Name:        "SERVER_ERROR",
		Message:     "The server encountered an error while processing your request.",
		Action:      "Please try again later. If the problem persists, contact support.",
		Severity:    SeverityError,
		Recoverable: true,
		Category:    CategoryNetwork,
		HTTPStatus:  http.StatusInternalServerError,
	},
	CodeInvalidInput: {
		Name:        "INVALID_INPUT",
		Message:     "Some of the information you provided is invalid.",
		Action:      "Please check your input and try again.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategoryValidation,
		HTTPStatus:  http.StatusBadRequest,
	},
	CodeMissingRequiredField: {
		Name:        "MISSING_REQUIRED_FIELD",
		Message:     "Required information is missing.",
		Action:      "Please fill in all required fields and try again.",
		Severity:    SeverityWarning,
		Recoverable: true,
		Category:    CategoryValidation,
		HTTPStatus:  http.StatusBadRequest,
	},
	CodeInsufficientPermissions: {
		Name:       "INSUFFICIENT_PERMISSIONS",
		Message:    "You do not have permission to perform this action.",
		Action:     "Please contact your administrator for access.",
		Severity:   SeverityError,
		Category:   CategoryPermission,
		HTTPStatus: http.StatusForbidden,
	},
	CodeRoleRestricted: {
		Name:       "ROLE_RESTRICTED",
		Message:    "This feature is restricted to users with specific roles.",
		Action:     "Please contact your administrator for role assignment.",
		Severity:   SeverityError,
		Category:   CategoryPermission,
		HTTPStatus: http.StatusForbidden,
	},
}

// Lookup returns a copy of the catalog entry for code. Unknown codes yield SERVER_ERROR.
func Lookup(code Code) *Details {
	d, ok := catalog[code]
	if !ok {
		code = CodeServerError
		d = catalog[code]
	}
	d.Code = code
	return &d
}

// Codes returns every catalog code.
func Codes() []Code {
	out := make([]Code, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	return out
}

// WithMessage returns a copy of d with a request-specific message.
func (d *Details) WithMessage(msg string) *Details {
	c := *d
	c.Message = msg
	return &c
}

// WithStatus returns a copy of d answered with a different HTTP status.
func (d *Details) WithStatus(status int) *Details {
	c := *d
	c.HTTPStatus = status
	return &c
}

// FromError maps transport-level failures: deadlines to REQUEST_TIMEOUT, cancellation to CONNECTION_FAILED,
// anything else to SERVER_ERROR. Domain sentinels are mapped by the HTTP layer before falling back here.
func FromError(err error) *Details {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Lookup(CodeRequestTimeout)
	case errors.Is(err, context.Canceled):
		return Lookup(CodeConnectionFailed)
	default:
		return Lookup(CodeServerError)
	}
}
