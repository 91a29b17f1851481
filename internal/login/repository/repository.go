package repository

import (
	"context"
	"time"

	"session-trust-engine/internal/login/domain"
)

// Repository parks pending logins until their challenge is resolved. Get returns (nil, nil) when the ref is unknown.
type Repository interface {
	Create(ctx context.Context, p *domain.PendingLogin) error
	Get(ctx context.Context, ref string) (*domain.PendingLogin, error)
	Delete(ctx context.Context, ref string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
