package repository

import (
	"context"
	"time"

	"session-trust-engine/internal/device/domain"
)

// Repository defines persistence for devices. Reads return (nil, nil) when the device does not exist.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	GetByUserAndFingerprint(ctx context.Context, userID, fingerprintHash string) (*domain.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Device, error)
	// CreateIfAbsent stores d unless a device with the same user and fingerprint exists,
	// and returns whichever device is stored afterwards.
	CreateIfAbsent(ctx context.Context, d *domain.Device) (*domain.Device, error)
	// MarkTrusted sets trusted and stamps trusted_at once. Returns false when the device does not exist.
	MarkTrusted(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}
