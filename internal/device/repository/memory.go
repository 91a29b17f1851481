package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"session-trust-engine/internal/device/domain"
)

// MemoryRepository keeps devices in process memory. Suitable for tests and single-instance deployments.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Device
	byKey map[string]string
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*domain.Device),
		byKey: make(map[string]string),
	}
}

func fingerprintKey(userID, fingerprintHash string) string {
	return userID + "\x00" + fingerprintHash
}

// GetByID returns the device for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

// GetByUserAndFingerprint returns the user's device with the given fingerprint, or nil if not found.
func (r *MemoryRepository) GetByUserAndFingerprint(ctx context.Context, userID, fingerprintHash string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[fingerprintKey(userID, fingerprintHash)]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

// ListByUser returns the user's devices ordered by first sighting.
func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Device
	for _, d := range r.byID {
		if d.UserID == userID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}

// CreateIfAbsent stores d unless the user already has a device with d's fingerprint.
func (r *MemoryRepository) CreateIfAbsent(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fingerprintKey(d.UserID, d.FingerprintHash)
	if id, ok := r.byKey[key]; ok {
		return r.byID[id].Clone(), nil
	}
	stored := d.Clone()
	r.byID[stored.ID] = stored
	r.byKey[key] = stored.ID
	return stored.Clone(), nil
}

// MarkTrusted flips the device to trusted. Already-trusted devices keep their original trusted_at.
func (r *MemoryRepository) MarkTrusted(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if !d.Trusted {
		d.Trusted = true
		d.TrustedAt = &at
	}
	return true, nil
}

// UpdateLastSeen sets the device's last-seen timestamp. Unknown ids are ignored.
func (r *MemoryRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byID[id]; ok {
		d.LastSeenAt = &at
	}
	return nil
}
