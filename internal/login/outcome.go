package login

import (
	"time"

	"session-trust-engine/internal/apierror"
	"session-trust-engine/internal/risk"
	sessiondomain "session-trust-engine/internal/session/domain"
)

// Status is the state of a login in the validation state machine.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusApproved           Status = "APPROVED"
	StatusNewDevice          Status = "NEW_DEVICE"
	StatusSuspiciousLocation Status = "SUSPICIOUS_LOCATION"
	StatusTooManyDevices     Status = "TOO_MANY_DEVICES"
	StatusOTPRequired        Status = "OTP_REQUIRED"
	StatusRejected           Status = "REJECTED"
)

// Terminal reports whether no further call can move a login out of this status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RejectReason says why a login ended in REJECTED.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectExpired          RejectReason = "EXPIRED"
	RejectAttemptsExceeded RejectReason = "ATTEMPTS_EXCEEDED"
	RejectAlreadyConsumed  RejectReason = "ALREADY_CONSUMED"
	RejectDeclined         RejectReason = "DECLINED"
)

// Outcome is the server-owned result of every LoginValidator call.
type Outcome struct {
	Status             Status                   `json:"status"`
	Verdict            risk.Verdict             `json:"verdict,omitempty"`
	Session            *sessiondomain.Session   `json:"session,omitempty"`
	Token              string                   `json:"token,omitempty"`
	ChallengeID        string                   `json:"challengeId,omitempty"`
	ChallengeExpiresAt *time.Time               `json:"challengeExpiresAt,omitempty"`
	RemainingAttempts  *int                     `json:"remainingAttempts,omitempty"`
	ActiveSessions     []*sessiondomain.Session `json:"activeSessions,omitempty"`
	RejectReason       RejectReason             `json:"rejectReason,omitempty"`
	Error              *apierror.Details        `json:"error,omitempty"`
}

// statusCode is the catalog entry a non-approved status is reported with.
func statusCode(s Status) apierror.Code {
	switch s {
	case StatusNewDevice:
		return apierror.CodeNewDevice
	case StatusSuspiciousLocation:
		return apierror.CodeSuspiciousLocation
	case StatusTooManyDevices:
		return apierror.CodeMultipleActiveSessions
	case StatusOTPRequired, StatusPending, StatusRejected:
		return apierror.CodeOTPRequired
	default:
		return ""
	}
}

var rejectMessages = map[RejectReason]string{
	RejectExpired:          "The verification code has expired. Please sign in again.",
	RejectAttemptsExceeded: "Too many incorrect verification codes. Please sign in again.",
	RejectAlreadyConsumed:  "This verification code has already been used. Please sign in again.",
}

// withError fills o.Error from its status. Approved outcomes carry no error.
func (o *Outcome) withError() *Outcome {
	if o.Status == StatusApproved {
		o.Error = nil
		return o
	}
	if o.Status == StatusRejected && o.RejectReason == RejectDeclined {
		o.Error = apierror.Lookup(apierror.CodeMaxDevicesReached).
			WithMessage("Login cancelled because the account is in use on another device.")
		return o
	}
	d := apierror.Lookup(statusCode(o.Status))
	if msg, ok := rejectMessages[o.RejectReason]; ok {
		d = d.WithMessage(msg)
	}
	o.Error = d
	return o
}

func verdictStatus(v risk.Verdict) Status {
	switch v {
	case risk.Clean:
		return StatusApproved
	case risk.NewDevice:
		return StatusNewDevice
	case risk.SuspiciousLocation:
		return StatusSuspiciousLocation
	case risk.TooManyDevices:
		return StatusTooManyDevices
	default:
		return StatusPending
	}
}

func intPtr(n int) *int { return &n }
