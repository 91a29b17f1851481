package risk

import (
	"context"
	"strings"
)

// UnknownCountry is the placeholder geo providers use when they cannot resolve an address.
const UnknownCountry = "XX"

// Signals are the facts a Classifier decides on.
type Signals struct {
	DeviceKnown   bool
	DeviceTrusted bool
	RequireOTP    bool
	Country       string
	LastCountry   string
	ActiveCount   int
	MaxSessions   int
}

// Classifier maps signals to a verdict.
type Classifier interface {
	Classify(ctx context.Context, sig Signals) (Verdict, error)
}

// RuleClassifier applies the decision table in Go. First match wins:
// untrusted device, admin OTP flag, country change, capacity.
type RuleClassifier struct{}

// Classify never fails.
func (RuleClassifier) Classify(_ context.Context, sig Signals) (Verdict, error) {
	return classify(sig), nil
}

func classify(sig Signals) Verdict {
	switch {
	case !sig.DeviceKnown || !sig.DeviceTrusted:
		return NewDevice
	case sig.RequireOTP:
		return SuspiciousLocation
	case countryChanged(sig.Country, sig.LastCountry):
		return SuspiciousLocation
	case sig.ActiveCount >= sig.MaxSessions:
		return TooManyDevices
	default:
		return Clean
	}
}

func knownCountry(c string) bool {
	c = strings.TrimSpace(c)
	return c != "" && !strings.EqualFold(c, UnknownCountry)
}

// countryChanged is false whenever either side is unknown.
func countryChanged(current, last string) bool {
	if !knownCountry(current) || !knownCountry(last) {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(current), strings.TrimSpace(last))
}
