package domain

import "time"

// Device is a physical device a user has logged in from, identified by a client-supplied fingerprint hash.
// Devices are never deleted; Trusted only moves from false to true.
type Device struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	FingerprintHash string     `json:"fingerprintHash"`
	Trusted         bool       `json:"trusted"`
	TrustedAt       *time.Time `json:"trustedAt,omitempty"`
	FirstSeenAt     time.Time  `json:"firstSeenAt"`
	LastSeenAt      *time.Time `json:"lastSeenAt,omitempty"`
}

// Clone returns a deep copy of d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.TrustedAt != nil {
		t := *d.TrustedAt
		c.TrustedAt = &t
	}
	if d.LastSeenAt != nil {
		t := *d.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}
