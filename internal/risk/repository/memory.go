package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps flags in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemoryRepository returns an empty in-memory flag repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{flags: make(map[string]bool)}
}

func (r *MemoryRepository) RequireOTP(ctx context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[userID], nil
}

func (r *MemoryRepository) SetRequireOTP(ctx context.Context, userID string, required bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if required {
		r.flags[userID] = true
	} else {
		delete(r.flags, userID)
	}
	return nil
}
