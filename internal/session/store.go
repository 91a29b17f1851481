// Package session admits, lists and terminates login sessions under a per-user concurrency limit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/session/domain"
	"session-trust-engine/internal/session/repository"
)

const (
	// DefaultMaxSessions is the admission limit used when none is configured.
	DefaultMaxSessions = 1
	// DefaultTTL is the session lifetime used when none is configured.
	DefaultTTL = 24 * time.Hour
	// RecentWindow is how long an inactive session stays in List after it ended.
	RecentWindow = 24 * time.Hour
)

var (
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = domain.ErrSessionNotFound
	// ErrSessionTerminated is returned by Touch when the session was ended by another action.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSessionExpired is returned by Touch when the session outlived its TTL.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidSession is returned when TryAdmit is called without user or device.
	ErrInvalidSession = errors.New("user id and device id are required")
)

// Options configures admission. Zero values fall back to the package defaults.
type Options struct {
	MaxSessions int
	TTL         time.Duration
}

// AdmitRequest is the login context recorded on an admitted session.
type AdmitRequest struct {
	UserID    string
	DeviceID  string
	IP        string
	Country   string
	UserAgent string
}

// Listing pairs a session with its derived suspicious flag.
type Listing struct {
	Session    *domain.Session
	Suspicious bool
}

// Store is the single owner of session state.
type Store struct {
	repo    repository.Repository
	opts    Options
	metrics *metrics.Recorder
	logger  *slog.Logger
	nowF    func() time.Time
}

// NewStore returns a Store over repo. A nil logger uses slog.Default().
func NewStore(repo repository.Repository, opts Options, logger *slog.Logger) *Store {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		opts:   opts,
		logger: logger,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics counts admission rejections and terminations on m.
func (s *Store) WithMetrics(m *metrics.Recorder) *Store {
	s.metrics = m
	return s
}

// MaxSessions returns the configured admission limit.
func (s *Store) MaxSessions() int { return s.opts.MaxSessions }

// CountActive returns the number of live sessions of the user.
func (s *Store) CountActive(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountActive(ctx, userID, s.nowF())
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// TryAdmit creates an active session when the user is below the limit. It never waits for capacity:
// ok is false when the user already holds MaxSessions live sessions.
func (s *Store) TryAdmit(ctx context.Context, req AdmitRequest) (*domain.Session, bool, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.DeviceID) == "" {
		return nil, false, ErrInvalidSession
	}
	now := s.nowF()
	sess := &domain.Session{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		DeviceID:     req.DeviceID,
		IP:           req.IP,
		Country:      req.Country,
		UserAgent:    req.UserAgent,
		LoginTime:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.opts.TTL),
		Active:       true,
	}
	ok, err := s.repo.Admit(ctx, sess, s.opts.MaxSessions, now)
	if err != nil {
		return nil, false, fmt.Errorf("admit session: %w", err)
	}
	if !ok {
		s.metrics.AdmissionRejected()
		s.logger.Info("session admission rejected", "user_id", req.UserID, "device_id", req.DeviceID, "max_sessions", s.opts.MaxSessions)
		return nil, false, nil
	}
	return sess, true, nil
}

// Terminate ends the session as a logout. Terminating an inactive session is a no-op.
func (s *Store) Terminate(ctx context.Context, sessionID string) error {
	_, err := s.TerminateWithReason(ctx, sessionID, domain.ReasonLogout)
	return err
}

// TerminateWithReason ends the session and reports whether this call changed it.
func (s *Store) TerminateWithReason(ctx context.Context, sessionID string, reason domain.TerminationReason) (bool, error) {
	found, changed, err := s.repo.Terminate(ctx, sessionID, reason, s.nowF())
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}
	if !found {
		return false, ErrSessionNotFound
	}
	if changed {
		s.metrics.SessionsTerminated(string(reason), 1)
		s.logger.Info("session terminated", "session_id", sessionID, "reason", reason)
	}
	return changed, nil
}

// Get returns the session for id.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns the user's live sessions plus those that ended within RecentWindow, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]*domain.Session, error) {
	all, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.nowF()
	out := make([]*domain.Session, 0, len(all))
	for _, sess := range all {
		if sess.LiveAt(now) || now.Sub(endedAt(sess)) <= RecentWindow {
			out = append(out, sess)
		}
	}
	return out, nil
}

// endedAt is when the session stopped counting: its termination time, or its expiry when it lapsed while active.
func endedAt(sess *domain.Session) time.Time {
	if sess.TerminatedAt != nil {
		return *sess.TerminatedAt
	}
	return sess.ExpiresAt
}

// ListActive returns the user's live sessions, newest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	all, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.nowF()
	out := make([]*domain.Session, 0, len(all))
	for _, sess := range all {
		if sess.LiveAt(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// MostRecentActive returns the user's newest live session, or nil if there is none.
func (s *Store) MostRecentActive(ctx context.Context, userID string) (*domain.Session, error) {
	active, err := s.ListActive(ctx, userID)
	if err != nil || len(active) == 0 {
		return nil, err
	}
	return active[0], nil
}

// Touch records activity on a live session. A session past its expiry is terminated with reason
// expired and reported as ErrSessionExpired; an inactive one as ErrSessionTerminated.
func (s *Store) Touch(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		if sess.TerminationReason == domain.ReasonExpired {
			return sess, ErrSessionExpired
		}
		return sess, ErrSessionTerminated
	}
	now := s.nowF()
	if !now.Before(sess.ExpiresAt) {
		if _, err := s.TerminateWithReason(ctx, sessionID, domain.ReasonExpired); err != nil {
			return nil, err
		}
		return sess, ErrSessionExpired
	}
	if err := s.repo.UpdateLastActive(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastActiveAt = now
	return sess, nil
}

// Search returns sessions matching f with their suspicious flag. When f.Suspicious is set only
// suspicious sessions are returned and pagination applies after that filter.
func (s *Store) Search(ctx context.Context, f domain.Filter) ([]Listing, error) {
	query := f
	if f.Suspicious {
		query.Limit, query.Offset = 0, 0
	}
	found, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}

	now := s.nowF()
	live := make(map[string]int)
	for _, sess := range found {
		if _, ok := live[sess.UserID]; ok || !sess.LiveAt(now) {
			continue
		}
		n, err := s.repo.CountActive(ctx, sess.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("search sessions: %w", err)
		}
		live[sess.UserID] = n
	}

	out := make([]Listing, 0, len(found))
	for _, sess := range found {
		suspicious := domain.Suspicious(sess, live[sess.UserID], now)
		if f.Suspicious && !suspicious {
			continue
		}
		out = append(out, Listing{Session: sess, Suspicious: suspicious})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Session.LoginTime.After(out[j].Session.LoginTime) })
	if f.Suspicious {
		out = pageListings(out, f.Limit, f.Offset)
	}
	return out, nil
}

func pageListings(list []Listing, limit, offset int) []Listing {
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
