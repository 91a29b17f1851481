// Package challenge issues and verifies single-use one-time codes that gate risky logins.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-trust-engine/internal/challenge/domain"
	"session-trust-engine/internal/challenge/repository"
	"session-trust-engine/internal/devotp"
)

const (
	// DefaultTTL is the challenge lifetime used when none is configured.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxAttempts is the wrong-code budget used when none is configured.
	DefaultMaxAttempts = 5
)

var (
	// ErrChallengeNotFound is returned when a challenge id does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrDeliveryFailed is returned when the code could not be handed to the notifier.
	ErrDeliveryFailed = errors.New("challenge code delivery failed")
	// ErrInvalidChallenge is returned when Issue is called without a user or pending login reference.
	ErrInvalidChallenge = errors.New("user id and pending session ref are required")
)

// Notifier delivers a freshly issued code to the user out of band. The engine never returns the code itself.
type Notifier interface {
	SendCode(ctx context.Context, userID, code string, expiresAt time.Time) error
}

// Options configures issued challenges. Zero values fall back to the package defaults.
type Options struct {
	TTL         time.Duration
	MaxAttempts int
	Digits      int
}

// Result is the outcome of one verification.
type Result struct {
	OK                bool
	Reason            domain.Reason
	Challenge         *domain.Challenge
	RemainingAttempts int
}

// Service owns challenge lifecycle: issue, verify, purge.
type Service struct {
	repo     repository.Repository
	notifier Notifier
	devStore devotp.Store
	opts     Options
	logger   *slog.Logger
	nowF     func() time.Time
}

// NewService returns a Service. notifier may be nil when codes are only exposed through a dev store.
func NewService(repo repository.Repository, notifier Notifier, opts Options, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Digits <= 0 {
		opts.Digits = DefaultDigits
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// WithDevStore makes issued codes retrievable from store. Only for non-production environments.
func (s *Service) WithDevStore(store devotp.Store) *Service {
	s.devStore = store
	return s
}

// MaxAttempts returns the configured wrong-code budget.
func (s *Service) MaxAttempts() int { return s.opts.MaxAttempts }

// Issue creates a challenge for the pending login and sends its code through the notifier.
func (s *Service) Issue(ctx context.Context, userID, pendingSessionRef string) (*domain.Challenge, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(pendingSessionRef) == "" {
		return nil, ErrInvalidChallenge
	}
	code, err := GenerateCode(s.opts.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := s.nowF()
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		UserID:            userID,
		PendingSessionRef: pendingSessionRef,
		CodeHash:          HashCode(code),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.opts.TTL),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	if s.devStore != nil {
		s.devStore.Put(ctx, c.ID, code, c.ExpiresAt)
	}
	if s.notifier != nil {
		if err := s.notifier.SendCode(ctx, userID, code, c.ExpiresAt); err != nil {
			s.logger.Error("challenge delivery failed", "challenge_id", c.ID, "user_id", userID, "error", err)
			if s.devStore == nil {
				return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
			}
		}
	}
	s.logger.Info("challenge issued", "challenge_id", c.ID, "user_id", userID, "expires_at", c.ExpiresAt)
	return c, nil
}

// Verify checks code against the challenge atomically. Expired, consumed and exhausted challenges are
// reported through Result.Reason; only an unknown id or a backend failure is an error.
func (s *Service) Verify(ctx context.Context, challengeID, code string) (Result, error) {
	now := s.nowF()
	var reason domain.Reason
	c, err := s.repo.Update(ctx, challengeID, func(c *domain.Challenge) bool {
		reason = c.Attempt(CodeMatches(code, c.CodeHash), now, s.opts.MaxAttempts)
		return reason == domain.ReasonNone || reason == domain.ReasonInvalidCode
	})
	if err != nil {
		return Result{}, fmt.Errorf("verify challenge: %w", err)
	}
	if c == nil {
		return Result{}, ErrChallengeNotFound
	}

	res := Result{
		OK:                reason == domain.ReasonNone,
		Reason:            reason,
		Challenge:         c,
		RemainingAttempts: c.Remaining(s.opts.MaxAttempts),
	}
	if res.OK && s.devStore != nil {
		s.devStore.Delete(ctx, challengeID)
	}
	s.logger.Info("challenge verified", "challenge_id", challengeID, "user_id", c.UserID, "ok", res.OK, "reason", string(reason))
	return res, nil
}

// Get returns the challenge for id or ErrChallengeNotFound.
func (s *Service) Get(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	c, err := s.repo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// PurgeExpired deletes challenges that expired before now. Expiry is enforced lazily by Verify;
// purging only reclaims storage.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.nowF())
	if err != nil {
		return 0, fmt.Errorf("purge challenges: %w", err)
	}
	return n, nil
}

// RunReaper calls PurgeExpired every interval until ctx is cancelled.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn("challenge reaper failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("challenge reaper purged", "count", n)
			}
		}
	}
}
