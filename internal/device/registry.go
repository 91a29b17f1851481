// Package device records the devices each user has logged in from and whether they are trusted.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-trust-engine/internal/device/domain"
	"session-trust-engine/internal/device/repository"
)

var (
	// ErrDeviceNotFound is returned when a device id does not exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrInvalidDevice is returned when user id or fingerprint hash is missing.
	ErrInvalidDevice = errors.New("user id and fingerprint hash are required")
)

// Registry is the append-only record of user devices.
type Registry struct {
	repo   repository.Repository
	logger *slog.Logger
	nowF   func() time.Time
}

// NewRegistry returns a Registry over repo. A nil logger uses slog.Default().
func NewRegistry(repo repository.Repository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:   repo,
		logger: logger,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

func validate(userID, fingerprintHash string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(fingerprintHash) == "" {
		return ErrInvalidDevice
	}
	return nil
}

// Lookup returns the user's device with the given fingerprint. found is false when the pair was never registered.
func (r *Registry) Lookup(ctx context.Context, userID, fingerprintHash string) (*domain.Device, bool, error) {
	if err := validate(userID, fingerprintHash); err != nil {
		return nil, false, err
	}
	d, err := r.repo.GetByUserAndFingerprint(ctx, userID, fingerprintHash)
	if err != nil {
		return nil, false, fmt.Errorf("lookup device: %w", err)
	}
	return d, d != nil, nil
}

// Register creates an untrusted device for (userID, fingerprintHash) or returns the existing one.
func (r *Registry) Register(ctx context.Context, userID, fingerprintHash string) (*domain.Device, error) {
	if err := validate(userID, fingerprintHash); err != nil {
		return nil, err
	}
	now := r.nowF()
	id := uuid.New().String()
	d, err := r.repo.CreateIfAbsent(ctx, &domain.Device{
		ID:              id,
		UserID:          userID,
		FingerprintHash: fingerprintHash,
		FirstSeenAt:     now,
		LastSeenAt:      &now,
	})
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	if d.ID == id {
		r.logger.Info("device registered", "user_id", userID, "device_id", d.ID)
	}
	return d, nil
}

// MarkTrusted marks the device trusted. Trusting an already trusted device is a no-op.
func (r *Registry) MarkTrusted(ctx context.Context, deviceID string) error {
	found, err := r.repo.MarkTrusted(ctx, deviceID, r.nowF())
	if err != nil {
		return fmt.Errorf("mark device trusted: %w", err)
	}
	if !found {
		return ErrDeviceNotFound
	}
	return nil
}

// Get returns the device for id or ErrDeviceNotFound.
func (r *Registry) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	d, err := r.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	if d == nil {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// ListByUser returns every device the user has logged in from.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	list, err := r.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return list, nil
}

// Touch records that the device was just seen. Failures are logged, not returned.
func (r *Registry) Touch(ctx context.Context, deviceID string) {
	if err := r.repo.UpdateLastSeen(ctx, deviceID, r.nowF()); err != nil {
		r.logger.Warn("device touch failed", "device_id", deviceID, "error", err)
	}
}
