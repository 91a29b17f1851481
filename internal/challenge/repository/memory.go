package repository

import (
	"context"
	"sync"
	"time"

	"session-trust-engine/internal/challenge/domain"
)

// MemoryRepository keeps challenges in process memory.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Challenge)}
}

// Create stores c. The challenge must have ID set.
func (r *MemoryRepository) Create(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c.ID] = c.Clone()
	return nil
}

// GetByID returns the challenge for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id].Clone(), nil
}

// Update runs fn under the repository lock.
func (r *MemoryRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	working := c.Clone()
	if fn(working) {
		r.m[id] = working.Clone()
	}
	return working, nil
}

// DeleteExpired drops challenges whose expiry is before the given time.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.m {
		if c.ExpiresAt.Before(before) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}
