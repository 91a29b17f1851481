package domain

import "time"

// PendingLogin is a login attempt parked behind a challenge. Ref is the challenge's pending session ref.
type PendingLogin struct {
	Ref             string
	UserID          string
	DeviceID        string
	FingerprintHash string
	IP              string
	Country         string
	UserAgent       string
	Verdict         string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the pending login can no longer be finished at now.
func (p *PendingLogin) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Clone returns a copy of p.
func (p *PendingLogin) Clone() *PendingLogin {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
