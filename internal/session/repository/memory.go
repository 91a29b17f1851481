package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"session-trust-engine/internal/session/domain"
)

// MemoryRepository keeps sessions in process memory. Admit and Terminate hold a per-user mutex
// for their whole check-and-write so concurrent logins of one user serialize while other users proceed.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Session
	byUser map[string][]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*domain.Session),
		byUser: make(map[string][]string),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRepository) userLock(userID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// GetByID returns the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

// ListByUser returns every session of the user, newest login first.
func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.Search(ctx, domain.Filter{UserID: userID})
}

// Search returns sessions matching f, newest login first.
func (r *MemoryRepository) Search(ctx context.Context, f domain.Filter) ([]*domain.Session, error) {
	r.mu.RLock()
	var out []*domain.Session
	if f.UserID != "" {
		for _, id := range r.byUser[f.UserID] {
			if s := r.byID[id]; matches(s, f) {
				out = append(out, s.Clone())
			}
		}
	} else {
		for _, s := range r.byID {
			if matches(s, f) {
				out = append(out, s.Clone())
			}
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	return paginate(out, f.Limit, f.Offset), nil
}

func matches(s *domain.Session, f domain.Filter) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Active != nil && s.Active != *f.Active {
		return false
	}
	if f.From != nil && s.LoginTime.Before(*f.From) {
		return false
	}
	if f.To != nil && s.LoginTime.After(*f.To) {
		return false
	}
	return true
}

func paginate(list []*domain.Session, limit, offset int) []*domain.Session {
	if offset > 0 {
		if offset >= len(list) {
			return nil
		}
		list = list[offset:]
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// CountActive returns the number of live sessions of the user at now.
func (r *MemoryRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLive(userID, now), nil
}

func (r *MemoryRepository) countLive(userID string, now time.Time) int {
	n := 0
	for _, id := range r.byUser[userID] {
		if r.byID[id].LiveAt(now) {
			n++
		}
	}
	return n
}

// Admit expires stale sessions, checks capacity and inserts s under the user's lock.
func (r *MemoryRepository) Admit(ctx context.Context, s *domain.Session, maxActive int, now time.Time) (bool, error) {
	l := r.userLock(s.UserID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byUser[s.UserID] {
		existing := r.byID[id]
		if existing.Active && !now.Before(existing.ExpiresAt) {
			existing.Active = false
			at := now
			existing.TerminatedAt = &at
			existing.TerminationReason = domain.ReasonExpired
		}
	}
	if r.countLive(s.UserID, now) >= maxActive {
		return false, nil
	}
	stored := s.Clone()
	r.byID[stored.ID] = stored
	r.byUser[stored.UserID] = append(r.byUser[stored.UserID], stored.ID)
	return true, nil
}

// Terminate flips the session to inactive once.
func (r *MemoryRepository) Terminate(ctx context.Context, id string, reason domain.TerminationReason, at time.Time) (bool, bool, error) {
	r.mu.RLock()
	s, ok := r.byID[id]
	var userID string
	if ok {
		userID = s.UserID
	}
	r.mu.RUnlock()
	if !ok {
		return false, false, nil
	}

	l := r.userLock(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.Active {
		return true, false, nil
	}
	s.Active = false
	s.TerminatedAt = &at
	s.TerminationReason = reason
	return true, true, nil
}

// UpdateLastActive sets last_active_at on an active session.
func (r *MemoryRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && s.Active {
		s.LastActiveAt = at
	}
	return nil
}
