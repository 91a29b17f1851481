// Package login runs the login validation state machine: classify an attempt, challenge it when risky,
// and admit a session when the account has capacity.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-trust-engine/internal/audit"
	"session-trust-engine/internal/challenge"
	challengedomain "session-trust-engine/internal/challenge/domain"
	"session-trust-engine/internal/device"
	devicedomain "session-trust-engine/internal/device/domain"
	"session-trust-engine/internal/login/domain"
	"session-trust-engine/internal/login/repository"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/risk"
	"session-trust-engine/internal/session"
	"session-trust-engine/internal/telemetry"
)

var (
	// ErrPendingLoginNotFound is returned when a verified challenge has no parked login to finish.
	ErrPendingLoginNotFound = errors.New("pending login not found")
	// ErrInvalidInput is returned when a required field is missing.
	ErrInvalidInput = errors.New("invalid login input")
)

// Attempt is the login tuple submitted after credentials were verified.
type Attempt struct {
	UserID          string `json:"userId"`
	FingerprintHash string `json:"fingerprintHash"`
	IP              string `json:"ip,omitempty"`
	Country         string `json:"country,omitempty"`
	UserAgent       string `json:"userAgent,omitempty"`
}

func (a Attempt) validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(a.FingerprintHash) == "" {
		return fmt.Errorf("%w: fingerprintHash is required", ErrInvalidInput)
	}
	return nil
}

// TokenIssuer signs a bearer token for an admitted session.
type TokenIssuer interface {
	IssueSession(sessionID, userID, deviceID string, expiresAt time.Time) (string, error)
}

// Deps are the collaborators of a Validator. Tokens, Audit, Events and Metrics are optional.
type Deps struct {
	Devices    *device.Registry
	Risk       *risk.Evaluator
	Challenges *challenge.Service
	Sessions   *session.Store
	Revocation *session.RevocationService
	Pending    repository.Repository
	Tokens     TokenIssuer
	Audit      audit.AuditLogger
	Events     telemetry.EventEmitter
	Metrics    *metrics.Recorder
}

// Validator drives a login from evaluation to an approved session. It owns no state of its own
// beyond parked pending logins.
type Validator struct {
	devices    *device.Registry
	risk       *risk.Evaluator
	challenges *challenge.Service
	sessions   *session.Store
	revocation *session.RevocationService
	pending    repository.Repository
	tokens     TokenIssuer
	audit      audit.AuditLogger
	events     telemetry.EventEmitter
	metrics    *metrics.Recorder
	logger     *slog.Logger
	nowF       func() time.Time
}

// NewValidator returns a Validator. A nil logger uses slog.Default().
func NewValidator(deps Deps, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Validator{
		devices:    deps.Devices,
		risk:       deps.Risk,
		challenges: deps.Challenges,
		sessions:   deps.Sessions,
		revocation: deps.Revocation,
		pending:    deps.Pending,
		tokens:     deps.Tokens,
		audit:      auditLogger,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     logger,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate classifies the attempt and either admits a session, issues a challenge, or reports the
// account's active sessions. Risk conditions are outcomes, not errors.
func (v *Validator) Evaluate(ctx context.Context, at Attempt) (*Outcome, error) {
	if err := at.validate(); err != nil {
		return nil, err
	}
	assessment, err := v.risk.Assess(ctx, risk.Attempt{
		UserID:          at.UserID,
		FingerprintHash: at.FingerprintHash,
		IP:              at.IP,
		Country:         at.Country,
		UserAgent:       at.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	dev := assessment.Device
	if dev == nil {
		if dev, err = v.devices.Register(ctx, at.UserID, at.FingerprintHash); err != nil {
			return nil, err
		}
	} else {
		v.devices.Touch(ctx, dev.ID)
	}

	verdict := assessment.Verdict
	v.metrics.Verdict(string(verdict))
	v.audit.LogEvent(ctx, at.UserID, audit.ActionLoginEvaluated, audit.ResourceLogin,
		metadata(map[string]any{"verdict": verdict, "deviceId": dev.ID, "country": at.Country}))
	telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventLoginEvaluated, at.UserID,
		map[string]any{"verdict": verdict, "country": at.Country, "ip": at.IP}).WithDevice(dev.ID))

	var out *Outcome
	switch verdict {
	case risk.Clean:
		out, err = v.admit(ctx, at, dev.ID)
	case risk.NewDevice, risk.SuspiciousLocation:
		out, err = v.challenge(ctx, at, dev.ID, verdict)
	case risk.TooManyDevices:
		out, err = v.tooManyDevices(ctx, at.UserID)
	default:
		return nil, fmt.Errorf("login: unexpected verdict %q", verdict)
	}
	if err != nil {
		return nil, err
	}
	if out.Verdict == "" {
		out.Verdict = verdict
	}
	return v.finish(ctx, out, at.UserID), nil
}

// ResolveChallenge verifies the code for a challenge issued by Evaluate. A correct code trusts the device
// and admits the parked login; a wrong one keeps the login in OTP_REQUIRED until attempts run out.
// The parked login is dropped only once the login is admitted, so a call that fails after the code was
// accepted can be repeated with the same code until the challenge expires.
func (v *Validator) ResolveChallenge(ctx context.Context, challengeID, code string) (*Outcome, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, fmt.Errorf("%w: challengeId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	res, err := v.challenges.Verify(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}
	c := res.Challenge
	reasonLabel := string(res.Reason)
	if res.OK {
		reasonLabel = "OK"
	}
	v.metrics.ChallengeVerified(reasonLabel)

	if res.OK {
		p, err := v.pendingFor(ctx, c)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrPendingLoginNotFound
		}
		return v.completeChallenge(ctx, c, p)
	}

	// A consumed challenge whose login is still parked was accepted by an earlier call that failed
	// before admitting; the same code resumes it.
	if res.Reason == challengedomain.ReasonAlreadyConsumed && challenge.CodeMatches(code, c.CodeHash) {
		p, err := v.pendingFor(ctx, c)
		if err != nil {
			return nil, err
		}
		if p != nil {
			v.logger.Info("login: resuming accepted challenge", "challenge_id", c.ID, "user_id", c.UserID)
			return v.completeChallenge(ctx, c, p)
		}
	}

	v.audit.LogEvent(ctx, c.UserID, audit.ActionChallengeFailed, audit.ResourceChallenge,
		metadata(map[string]any{"challengeId": c.ID, "reason": res.Reason}))
	out := &Outcome{Status: StatusRejected, ChallengeID: c.ID, ChallengeExpiresAt: &c.ExpiresAt, RemainingAttempts: intPtr(res.RemainingAttempts)}
	switch res.Reason {
	case challengedomain.ReasonInvalidCode:
		if res.RemainingAttempts > 0 {
			out.Status = StatusOTPRequired
		} else {
			out.RejectReason = RejectAttemptsExceeded
		}
	case challengedomain.ReasonAttemptsExceeded:
		out.RejectReason = RejectAttemptsExceeded
	case challengedomain.ReasonExpired:
		out.RejectReason = RejectExpired
	default:
		out.RejectReason = RejectAlreadyConsumed
	}
	if out.Status == StatusRejected && res.Reason != challengedomain.ReasonAlreadyConsumed {
		v.discardPending(ctx, c.PendingSessionRef)
	}
	return v.finish(ctx, out, c.UserID), nil
}

// pendingFor loads the login parked behind c, or nil when it is gone or belongs to someone else.
func (v *Validator) pendingFor(ctx context.Context, c *challengedomain.Challenge) (*domain.PendingLogin, error) {
	p, err := v.pending.Get(ctx, c.PendingSessionRef)
	if err != nil {
		return nil, fmt.Errorf("load pending login: %w", err)
	}
	if p == nil || p.UserID != c.UserID {
		return nil, nil
	}
	return p, nil
}

// completeChallenge trusts the device of an accepted challenge and admits its parked login.
// The parked login is kept when any step fails.
func (v *Validator) completeChallenge(ctx context.Context, c *challengedomain.Challenge, p *domain.PendingLogin) (*Outcome, error) {
	if err := v.devices.MarkTrusted(ctx, p.DeviceID); err != nil {
		return nil, err
	}
	if err := v.risk.ClearRequireOTP(ctx, p.UserID); err != nil {
		v.logger.Warn("login: clear require-otp flag failed", "user_id", p.UserID, "error", err)
	}
	v.audit.LogEvent(ctx, p.UserID, audit.ActionChallengeVerified, audit.ResourceChallenge,
		metadata(map[string]any{"challengeId": c.ID, "deviceId": p.DeviceID}))
	v.audit.LogEvent(ctx, p.UserID, audit.ActionDeviceTrusted, audit.ResourceDevice, p.DeviceID)
	telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventChallengeVerified, p.UserID,
		map[string]any{"challengeId": c.ID}).WithDevice(p.DeviceID))

	out, err := v.Finalize(ctx, Attempt{
		UserID:          p.UserID,
		FingerprintHash: p.FingerprintHash,
		IP:              p.IP,
		Country:         p.Country,
		UserAgent:       p.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	v.discardPending(ctx, p.Ref)
	out.Verdict = risk.Verdict(p.Verdict)
	return out, nil
}

// ResolveTooManyDevices answers a TOO_MANY_DEVICES outcome. With terminateOthers the account's existing
// sessions are ended and the login is admitted; otherwise the login is rejected. Only a trusted device
// may take this path: anything else is evaluated again, which challenges it.
func (v *Validator) ResolveTooManyDevices(ctx context.Context, at Attempt, terminateOthers bool) (*Outcome, error) {
	if err := at.validate(); err != nil {
		return nil, err
	}
	dev, known, err := v.devices.Lookup(ctx, at.UserID, at.FingerprintHash)
	if err != nil {
		return nil, err
	}
	if !known || !trustedDevice(dev) {
		return v.Evaluate(ctx, at)
	}
	if !terminateOthers {
		return v.finish(ctx, &Outcome{Status: StatusRejected, Verdict: risk.TooManyDevices, RejectReason: RejectDeclined}, at.UserID), nil
	}
	// The new login replaces every existing session, including an older one on this device.
	n, err := v.revocation.TerminateOthers(ctx, at.UserID, "")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventSessionsTerminated, at.UserID,
			map[string]any{"count": n, "reason": "replaced"}).WithDevice(dev.ID))
	}
	out, err := v.Finalize(ctx, at)
	if err != nil {
		return nil, err
	}
	out.Verdict = risk.TooManyDevices
	return out, nil
}

// Finalize admits a session for an attempt from an already trusted device. An unknown or untrusted
// device yields NEW_DEVICE without a session; a full account yields TOO_MANY_DEVICES.
func (v *Validator) Finalize(ctx context.Context, at Attempt) (*Outcome, error) {
	if err := at.validate(); err != nil {
		return nil, err
	}
	dev, known, err := v.devices.Lookup(ctx, at.UserID, at.FingerprintHash)
	if err != nil {
		return nil, err
	}
	if !known || !trustedDevice(dev) {
		return v.finish(ctx, &Outcome{Status: StatusNewDevice, Verdict: risk.NewDevice}, at.UserID), nil
	}
	out, err := v.admit(ctx, at, dev.ID)
	if err != nil {
		return nil, err
	}
	return v.finish(ctx, out, at.UserID), nil
}

// admit tries to take a session slot. Losing the race to a concurrent login reports TOO_MANY_DEVICES.
func (v *Validator) admit(ctx context.Context, at Attempt, deviceID string) (*Outcome, error) {
	sess, ok, err := v.sessions.TryAdmit(ctx, session.AdmitRequest{
		UserID:    at.UserID,
		DeviceID:  deviceID,
		IP:        at.IP,
		Country:   at.Country,
		UserAgent: at.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		out, err := v.tooManyDevices(ctx, at.UserID)
		if err != nil {
			return nil, err
		}
		out.Verdict = risk.TooManyDevices
		return out, nil
	}

	out := &Outcome{Status: StatusApproved, Session: sess}
	if v.tokens != nil {
		if out.Token, err = v.tokens.IssueSession(sess.ID, sess.UserID, sess.DeviceID, sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("issue session token: %w", err)
		}
	}
	v.audit.LogEvent(ctx, at.UserID, audit.ActionLoginApproved, audit.ResourceSession, sess.ID)
	telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventSessionAdmitted, at.UserID,
		map[string]any{"country": at.Country, "ip": at.IP}).WithDevice(deviceID).WithSession(sess.ID))
	v.logger.Info("login approved", "user_id", at.UserID, "device_id", deviceID, "session_id", sess.ID)
	return out, nil
}

// challenge parks the attempt and issues a one-time code bound to it.
func (v *Validator) challenge(ctx context.Context, at Attempt, deviceID string, verdict risk.Verdict) (*Outcome, error) {
	ref := uuid.New().String()
	c, err := v.challenges.Issue(ctx, at.UserID, ref)
	if err != nil {
		return nil, err
	}
	p := &domain.PendingLogin{
		Ref:             ref,
		UserID:          at.UserID,
		DeviceID:        deviceID,
		FingerprintHash: at.FingerprintHash,
		IP:              at.IP,
		Country:         at.Country,
		UserAgent:       at.UserAgent,
		Verdict:         string(verdict),
		CreatedAt:       c.CreatedAt,
		ExpiresAt:       c.ExpiresAt,
	}
	if err := v.pending.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("park pending login: %w", err)
	}
	v.audit.LogEvent(ctx, at.UserID, audit.ActionChallengeIssued, audit.ResourceChallenge,
		metadata(map[string]any{"challengeId": c.ID, "verdict": verdict, "deviceId": deviceID}))
	telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventChallengeIssued, at.UserID,
		map[string]any{"challengeId": c.ID, "verdict": verdict}).WithDevice(deviceID))

	return &Outcome{
		Status:             verdictStatus(verdict),
		Verdict:            verdict,
		ChallengeID:        c.ID,
		ChallengeExpiresAt: &c.ExpiresAt,
		RemainingAttempts:  intPtr(v.challenges.MaxAttempts()),
	}, nil
}

func (v *Validator) tooManyDevices(ctx context.Context, userID string) (*Outcome, error) {
	active, err := v.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: StatusTooManyDevices, ActiveSessions: active}, nil
}

func (v *Validator) discardPending(ctx context.Context, ref string) {
	if err := v.pending.Delete(ctx, ref); err != nil {
		v.logger.Warn("login: discard pending login failed", "ref", ref, "error", err)
	}
}

// PurgeExpired removes pending logins whose challenge window has passed.
func (v *Validator) PurgeExpired(ctx context.Context) (int, error) {
	n, err := v.pending.DeleteExpired(ctx, v.nowF())
	if err != nil {
		return 0, fmt.Errorf("purge pending logins: %w", err)
	}
	return n, nil
}

// finish attaches the error details for the status and records the outcome.
func (v *Validator) finish(ctx context.Context, out *Outcome, userID string) *Outcome {
	out.withError()
	v.metrics.Outcome(string(out.Status))
	if out.Status == StatusRejected {
		v.audit.LogEvent(ctx, userID, audit.ActionLoginRejected, audit.ResourceLogin,
			metadata(map[string]any{"reason": out.RejectReason}))
		telemetry.EmitAsync(v.events, ctx, telemetry.NewEvent(telemetry.EventLoginRejected, userID,
			map[string]any{"reason": out.RejectReason}))
	}
	return out
}

func metadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// trustedDevice is satisfied by devices that may skip the challenge.
func trustedDevice(d *devicedomain.Device) bool { return d != nil && d.Trusted }
