// Package notify delivers one-time codes to users over email, SMS or the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
)

// ErrNoChannel is returned when no configured channel could reach the user.
var ErrNoChannel = errors.New("no delivery channel for user")

// Contact is where a user can receive a code. Empty fields mean the channel is unavailable.
type Contact struct {
	Email string
	Phone string
}

// ContactResolver looks up a user's contact details.
type ContactResolver interface {
	Resolve(ctx context.Context, userID string) (Contact, error)
}

// Channel delivers a code to a contact. It reports delivered=false without error when the contact
// has no address for this channel.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, to Contact, code string, expiresAt time.Time) (delivered bool, err error)
}

// Notifier tries each channel in order and succeeds when at least one delivered the code.
type Notifier struct {
	resolver ContactResolver
	channels []Channel
	logger   *slog.Logger
}

// NewNotifier returns a Notifier. A nil resolver uses UserIDResolver.
func NewNotifier(resolver ContactResolver, logger *slog.Logger, channels ...Channel) *Notifier {
	if resolver == nil {
		resolver = UserIDResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{resolver: resolver, channels: channels, logger: logger}
}

// SendCode resolves the user's contact and delivers code on every channel that can reach it.
func (n *Notifier) SendCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	to, err := n.resolver.Resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}
	var errs []error
	delivered := 0
	for _, ch := range n.channels {
		ok, err := ch.Deliver(ctx, to, code, expiresAt)
		if err != nil {
			n.logger.Warn("notify: delivery failed", "channel", ch.Name(), "user_id", userID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		if ok {
			delivered++
			n.logger.Debug("notify: code delivered", "channel", ch.Name(), "user_id", userID)
		}
	}
	if delivered > 0 {
		return nil
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return ErrNoChannel
}

// UserIDResolver treats user ids that look like an email address or phone number as the contact itself.
type UserIDResolver struct{}

// Resolve implements ContactResolver.
func (UserIDResolver) Resolve(ctx context.Context, userID string) (Contact, error) {
	id := strings.TrimSpace(userID)
	switch {
	case strings.Contains(id, "@"):
		return Contact{Email: id}, nil
	case isPhone(id):
		return Contact{Phone: strings.TrimPrefix(id, "+")}, nil
	default:
		return Contact{}, nil
	}
}

func isPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if len(s) < 7 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// MapResolver resolves contacts from a fixed table, falling back to UserIDResolver.
type MapResolver map[string]Contact

// Resolve implements ContactResolver.
func (m MapResolver) Resolve(ctx context.Context, userID string) (Contact, error) {
	if c, ok := m[userID]; ok {
		return c, nil
	}
	return UserIDResolver{}.Resolve(ctx, userID)
}

// LogChannel writes a delivery line to the logger. The code itself is only logged when ShowCode is set.
type LogChannel struct {
	Logger   *slog.Logger
	ShowCode bool
}

func (LogChannel) Name() string { return "log" }

// Deliver always succeeds.
func (c LogChannel) Deliver(ctx context.Context, to Contact, code string, expiresAt time.Time) (bool, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"email", to.Email, "phone", maskPhone(to.Phone), "expires_at", expiresAt}
	if c.ShowCode {
		attrs = append(attrs, "code", code)
	}
	logger.Info("one-time code issued", attrs...)
	return true, nil
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
