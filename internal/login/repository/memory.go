package repository

import (
	"context"
	"sync"
	"time"

	"session-trust-engine/internal/login/domain"
)

// MemoryRepository keeps pending logins in process memory.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.PendingLogin
}

// NewMemoryRepository returns an empty in-memory pending login repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.PendingLogin)}
}

func (r *MemoryRepository) Create(ctx context.Context, p *domain.PendingLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.Ref] = p.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, ref string) (*domain.PendingLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[ref].Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, ref)
	return nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for ref, p := range r.m {
		if p.ExpiresAt.Before(before) {
			delete(r.m, ref)
			n++
		}
	}
	return n, nil
}
