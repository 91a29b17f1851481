// Package audit records security-relevant actions (logins, challenges, terminations, admin changes).
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"session-trust-engine/internal/audit/domain"
	auditrepo "session-trust-engine/internal/audit/repository"
)

// Actions recorded by the engine.
const (
	ActionLoginEvaluated    = "login_evaluated"
	ActionLoginApproved     = "login_approved"
	ActionLoginRejected     = "login_rejected"
	ActionChallengeIssued   = "challenge_issued"
	ActionChallengeVerified = "challenge_verified"
	ActionChallengeFailed   = "challenge_failed"
	ActionSessionTerminated = "session_terminated"
	ActionDeviceTrusted     = "device_trusted"
	ActionOTPRequired       = "otp_required"
)

// Resources referenced by audit entries.
const (
	ResourceLogin     = "login"
	ResourceChallenge = "challenge"
	ResourceSession   = "session"
	ResourceDevice    = "device"
	ResourceUser      = "user"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *slog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event", "action", action, "resource", resource, "error", err)
	}
}

// Nop discards every event.
type Nop struct{}

// LogEvent does nothing.
func (Nop) LogEvent(context.Context, string, string, string, string) {}
