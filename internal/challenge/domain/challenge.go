package domain

import "time"

// Reason explains why a verification did not succeed. ReasonNone means the code was accepted.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonExpired          Reason = "EXPIRED"
	ReasonAlreadyConsumed  Reason = "ALREADY_CONSUMED"
	ReasonAttemptsExceeded Reason = "ATTEMPTS_EXCEEDED"
	ReasonInvalidCode      Reason = "INVALID_CODE"
)

// Terminal reports whether no later attempt on the same challenge can succeed.
func (r Reason) Terminal() bool {
	switch r {
	case ReasonExpired, ReasonAlreadyConsumed, ReasonAttemptsExceeded:
		return true
	default:
		return false
	}
}

// Challenge is a single-use one-time code bound to a pending login. Only the code hash is stored.
type Challenge struct {
	ID                string
	UserID            string
	PendingSessionRef string
	CodeHash          string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Attempts          int
	Consumed          bool
}

// Attempt applies one verification to c and returns the outcome.
// Checks run in order: expiry, consumption, attempt budget, code. A wrong code costs one attempt;
// a correct one consumes the challenge. Rejections before the code check leave c unchanged.
func (c *Challenge) Attempt(codeMatches bool, now time.Time, maxAttempts int) Reason {
	switch {
	case now.After(c.ExpiresAt):
		return ReasonExpired
	case c.Consumed:
		return ReasonAlreadyConsumed
	case c.Attempts >= maxAttempts:
		return ReasonAttemptsExceeded
	case !codeMatches:
		c.Attempts++
		return ReasonInvalidCode
	default:
		c.Consumed = true
		return ReasonNone
	}
}

// Remaining returns how many more codes may be tried.
func (c *Challenge) Remaining(maxAttempts int) int {
	if c.Consumed || c.Attempts >= maxAttempts {
		return 0
	}
	return maxAttempts - c.Attempts
}

// Clone returns a copy of c.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
