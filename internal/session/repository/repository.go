package repository

import (
	"context"
	"time"

	"session-trust-engine/internal/session/domain"
)

// Repository defines persistence for sessions. Reads return (nil, nil) when the session does not exist.
//
// Admit and Terminate are the only writers of the active flag; every implementation makes each of them
// atomic per user so that the number of live sessions never exceeds the admission limit.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUser returns every session of the user, newest login first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Search returns sessions matching f, newest login first. f.Suspicious is applied by the caller.
	Search(ctx context.Context, f domain.Filter) ([]*domain.Session, error)
	// CountActive returns the number of live sessions of the user at now.
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)
	// Admit terminates the user's sessions that expired by now, then inserts s only if fewer than
	// maxActive live sessions remain. Returns false without writing s when the user is at capacity.
	Admit(ctx context.Context, s *domain.Session, maxActive int, now time.Time) (bool, error)
	// Terminate flips the session to inactive once. found is false for unknown ids;
	// changed is false when the session was already inactive.
	Terminate(ctx context.Context, id string, reason domain.TerminationReason, at time.Time) (found, changed bool, err error)
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
}
