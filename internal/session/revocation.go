package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"session-trust-engine/internal/audit"
	"session-trust-engine/internal/session/domain"
)

// ErrForbidden is returned when a user tries to terminate another user's session without admin override.
var ErrForbidden = errors.New("not allowed to terminate this session")

// RevocationService ends sessions on behalf of users and admins. It only calls Store operations.
type RevocationService struct {
	store       *Store
	auditLogger audit.AuditLogger
	logger      *slog.Logger
}

// NewRevocationService returns a RevocationService. auditLogger may be nil.
func NewRevocationService(store *Store, auditLogger audit.AuditLogger, logger *slog.Logger) *RevocationService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationService{store: store, auditLogger: auditLogger, logger: logger}
}

// TerminateOthers ends every live session of the user that is not on keepDeviceID and returns how many it ended.
func (r *RevocationService) TerminateOthers(ctx context.Context, userID, keepDeviceID string) (int, error) {
	return r.terminateMatching(ctx, userID, domain.ReasonReplaced, func(s *domain.Session) bool {
		return s.DeviceID != keepDeviceID
	})
}

// TerminateAll ends every live session of the user and returns how many it ended.
func (r *RevocationService) TerminateAll(ctx context.Context, userID string) (int, error) {
	return r.terminateMatching(ctx, userID, domain.ReasonTerminateAll, func(*domain.Session) bool { return true })
}

func (r *RevocationService) terminateMatching(ctx context.Context, userID string, reason domain.TerminationReason, match func(*domain.Session) bool) (int, error) {
	active, err := r.store.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range active {
		if !match(s) {
			continue
		}
		changed, err := r.store.TerminateWithReason(ctx, s.ID, reason)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if changed {
			n++
			r.auditLogger.LogEvent(ctx, userID, audit.ActionSessionTerminated, audit.ResourceSession, s.ID)
		}
	}
	if n > 0 {
		r.logger.Info("sessions terminated", "user_id", userID, "reason", reason, "count", n)
	}
	return n, nil
}

// TerminateSession ends one session. Unless admin is set the session must belong to requestingUserID.
func (r *RevocationService) TerminateSession(ctx context.Context, sessionID, requestingUserID string, admin bool) error {
	s, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !admin && s.UserID != requestingUserID {
		return ErrForbidden
	}
	reason := domain.ReasonUserRequested
	if admin {
		reason = domain.ReasonAdmin
	}
	changed, err := r.store.TerminateWithReason(ctx, sessionID, reason)
	if err != nil {
		return fmt.Errorf("terminate session %s: %w", sessionID, err)
	}
	if changed {
		r.auditLogger.LogEvent(ctx, s.UserID, audit.ActionSessionTerminated, audit.ResourceSession, sessionID)
	}
	return nil
}
