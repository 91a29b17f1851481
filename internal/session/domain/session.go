package domain

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// TerminationReason records why a session stopped being active.
type TerminationReason string

const (
	ReasonLogout        TerminationReason = "logout"
	ReasonReplaced      TerminationReason = "replaced_by_new_login"
	ReasonTerminateAll  TerminationReason = "terminate_all"
	ReasonAdmin         TerminationReason = "admin"
	ReasonExpired       TerminationReason = "expired"
	ReasonUserRequested TerminationReason = "user_requested"
)

// SuspiciousWindow is how recent a login must be to count towards the suspicious heuristic.
const SuspiciousWindow = 24 * time.Hour

// Session is one admitted login. Active moves from true to false exactly once.
type Session struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	DeviceID          string            `json:"deviceId"`
	IP                string            `json:"ip,omitempty"`
	Country           string            `json:"country,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	LoginTime         time.Time         `json:"loginTime"`
	LastActiveAt      time.Time         `json:"lastActiveAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	Active            bool              `json:"active"`
	TerminatedAt      *time.Time        `json:"terminatedAt,omitempty"`
	TerminationReason TerminationReason `json:"terminationReason,omitempty"`
}

// LiveAt reports whether the session is active and not past its expiry at now.
func (s *Session) LiveAt(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.TerminatedAt != nil {
		t := *s.TerminatedAt
		c.TerminatedAt = &t
	}
	return &c
}

// Suspicious reports whether s looks like concurrent sharing: it is live, the user holds more than
// one live session and s was opened within SuspiciousWindow.
func Suspicious(s *Session, liveCount int, now time.Time) bool {
	return s.LiveAt(now) && liveCount > 1 && now.Sub(s.LoginTime) <= SuspiciousWindow
}

// Filter narrows session searches. Zero values do not filter.
type Filter struct {
	UserID     string
	Active     *bool
	From       *time.Time
	To         *time.Time
	Suspicious bool
	Limit      int
	Offset     int
}
