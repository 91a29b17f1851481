package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	devicedomain "session-trust-engine/internal/device/domain"
	"session-trust-engine/internal/risk/repository"
	sessiondomain "session-trust-engine/internal/session/domain"
)

// DeviceLookup finds a registered device without creating one.
type DeviceLookup interface {
	Lookup(ctx context.Context, userID, fingerprintHash string) (*devicedomain.Device, bool, error)
}

// SessionView is the read side of the session store the evaluator needs.
type SessionView interface {
	MostRecentActive(ctx context.Context, userID string) (*sessiondomain.Session, error)
	CountActive(ctx context.Context, userID string) (int, error)
	MaxSessions() int
}

// Attempt is the login tuple being classified.
type Attempt struct {
	UserID          string
	FingerprintHash string
	IP              string
	Country         string
	UserAgent       string
}

// Assessment is a verdict plus the facts it was derived from.
type Assessment struct {
	Verdict Verdict
	Device  *devicedomain.Device
	Signals Signals
}

// Evaluator gathers signals from the device registry, session store and admin flags and classifies them.
type Evaluator struct {
	devices    DeviceLookup
	sessions   SessionView
	flags      repository.Repository
	classifier Classifier
	logger     *slog.Logger
	nowF       func() time.Time
}

// NewEvaluator returns an Evaluator. A nil classifier uses RuleClassifier; nil flags disables the OTP flag.
func NewEvaluator(devices DeviceLookup, sessions SessionView, flags repository.Repository, classifier Classifier, logger *slog.Logger) *Evaluator {
	if classifier == nil {
		classifier = RuleClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		devices:    devices,
		sessions:   sessions,
		flags:      flags,
		classifier: classifier,
		logger:     logger,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// Classify returns the verdict for the attempt.
func (e *Evaluator) Classify(ctx context.Context, userID, fingerprintHash, ip, country, userAgent string) (Verdict, error) {
	a, err := e.Assess(ctx, Attempt{UserID: userID, FingerprintHash: fingerprintHash, IP: ip, Country: country, UserAgent: userAgent})
	if err != nil {
		return "", err
	}
	return a.Verdict, nil
}

// Assess gathers signals and classifies the attempt.
func (e *Evaluator) Assess(ctx context.Context, at Attempt) (*Assessment, error) {
	d, known, err := e.devices.Lookup(ctx, at.UserID, at.FingerprintHash)
	if err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	sig := Signals{
		DeviceKnown:   known,
		DeviceTrusted: known && d.Trusted,
		Country:       at.Country,
		MaxSessions:   e.sessions.MaxSessions(),
	}
	if e.flags != nil {
		if sig.RequireOTP, err = e.flags.RequireOTP(ctx, at.UserID); err != nil {
			return nil, fmt.Errorf("risk: read login flags: %w", err)
		}
	}
	last, err := e.sessions.MostRecentActive(ctx, at.UserID)
	if err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}
	if last != nil {
		sig.LastCountry = last.Country
	}
	if sig.ActiveCount, err = e.sessions.CountActive(ctx, at.UserID); err != nil {
		return nil, fmt.Errorf("risk: %w", err)
	}

	v, err := e.classifier.Classify(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("risk: classify: %w", err)
	}
	e.logger.Debug("risk: login classified",
		"user_id", at.UserID,
		"verdict", v,
		"device_known", sig.DeviceKnown,
		"device_trusted", sig.DeviceTrusted,
		"require_otp", sig.RequireOTP,
		"country", sig.Country,
		"last_country", sig.LastCountry,
		"active_count", sig.ActiveCount,
	)
	return &Assessment{Verdict: v, Device: d, Signals: sig}, nil
}

// RequireOTP flags the user so their next login from a trusted device is challenged.
func (e *Evaluator) RequireOTP(ctx context.Context, userID string) error {
	if e.flags == nil {
		return fmt.Errorf("risk: login flags are not configured")
	}
	if err := e.flags.SetRequireOTP(ctx, userID, true, e.nowF()); err != nil {
		return fmt.Errorf("risk: set login flag: %w", err)
	}
	return nil
}

// ClearRequireOTP removes the flag after the user passed a challenge.
func (e *Evaluator) ClearRequireOTP(ctx context.Context, userID string) error {
	if e.flags == nil {
		return nil
	}
	if err := e.flags.SetRequireOTP(ctx, userID, false, e.nowF()); err != nil {
		return fmt.Errorf("risk: clear login flag: %w", err)
	}
	return nil
}
