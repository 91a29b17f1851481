package repository

import (
	"context"
	"time"

	"session-trust-engine/internal/challenge/domain"
)

// UpdateFunc mutates a loaded challenge and reports whether the result must be written back.
type UpdateFunc func(c *domain.Challenge) bool

// Repository defines persistence for challenges. Reads return (nil, nil) when the challenge does not exist.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	GetByID(ctx context.Context, id string) (*domain.Challenge, error)
	// Update loads the challenge, runs fn and persists its changes as one atomic step with respect to
	// other Update calls on the same id. Returns the challenge as fn left it, or nil if it does not exist.
	Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Challenge, error)
	// DeleteExpired removes challenges that expired before the given time and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
