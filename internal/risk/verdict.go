// Package risk classifies login attempts into one of four verdicts.
package risk

// Verdict is the classification of one login attempt.
type Verdict string

const (
	Clean              Verdict = "CLEAN"
	NewDevice          Verdict = "NEW_DEVICE"
	SuspiciousLocation Verdict = "SUSPICIOUS_LOCATION"
	TooManyDevices     Verdict = "TOO_MANY_DEVICES"
)

// Valid reports whether v is one of the four verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case Clean, NewDevice, SuspiciousLocation, TooManyDevices:
		return true
	}
	return false
}

// RequiresChallenge reports whether the login must pass a one-time code before admission.
func (v Verdict) RequiresChallenge() bool {
	switch v {
	case NewDevice, SuspiciousLocation:
		return true
	case Clean, TooManyDevices:
		return false
	}
	return false
}

func (v Verdict) String() string { return string(v) }
