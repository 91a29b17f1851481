package login

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"session-trust-engine/internal/apierror"
	"session-trust-engine/internal/challenge"
	challengerepo "session-trust-engine/internal/challenge/repository"
	"session-trust-engine/internal/device"
	devicerepo "session-trust-engine/internal/device/repository"
	"session-trust-engine/internal/devotp"
	"session-trust-engine/internal/login/repository"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/risk"
	riskrepo "session-trust-engine/internal/risk/repository"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/session"
	sessiondomain "session-trust-engine/internal/session/domain"
	sessionrepo "session-trust-engine/internal/session/repository"
)

type recordedEvent struct {
	userID, action, resource string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *recordingAudit) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{userID, action, resource})
}

func (a *recordingAudit) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.action == action {
			n++
		}
	}
	return n
}

type fixture struct {
	validator *Validator
	devices   *device.Registry
	sessions  *session.Store
	flags     *riskrepo.MemoryRepository
	pending   *repository.MemoryRepository
	codes     *devotp.MemoryStore
	tokens    *security.TokenProvider
	audit     *recordingAudit
	metrics   *metrics.Recorder
}

type fixtureOptions struct {
	maxSessions  int
	challengeTTL time.Duration
	sessionRepo  sessionrepo.Repository
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	if opts.maxSessions == 0 {
		opts.maxSessions = 1
	}
	if opts.challengeTTL == 0 {
		opts.challengeTTL = 5 * time.Minute
	}
	rec := metrics.New()
	auditLog := &recordingAudit{}
	devices := device.NewRegistry(devicerepo.NewMemoryRepository(), nil)
	if opts.sessionRepo == nil {
		opts.sessionRepo = sessionrepo.NewMemoryRepository()
	}
	sessions := session.NewStore(opts.sessionRepo,
		session.Options{MaxSessions: opts.maxSessions, TTL: time.Hour}, nil).WithMetrics(rec)
	codes := devotp.NewMemoryStore()
	challenges := challenge.NewService(challengerepo.NewMemoryRepository(), nil,
		challenge.Options{TTL: opts.challengeTTL, MaxAttempts: 5, Digits: 6}, nil).WithDevStore(codes)
	flags := riskrepo.NewMemoryRepository()
	evaluator := risk.NewEvaluator(devices, sessions, flags, nil, nil)
	pending := repository.NewMemoryRepository()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	v := NewValidator(Deps{
		Devices:    devices,
		Risk:       evaluator,
		Challenges: challenges,
		Sessions:   sessions,
		Revocation: session.NewRevocationService(sessions, auditLog, nil),
		Pending:    pending,
		Tokens:     tokens,
		Audit:      auditLog,
		Metrics:    rec,
	}, nil)
	return &fixture{
		validator: v,
		devices:   devices,
		sessions:  sessions,
		flags:     flags,
		pending:   pending,
		codes:     codes,
		tokens:    tokens,
		audit:     auditLog,
		metrics:   rec,
	}
}

func (f *fixture) trust(t *testing.T, userID, fp string) string {
	t.Helper()
	ctx := context.Background()
	d, err := f.devices.Register(ctx, userID, fp)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.devices.MarkTrusted(ctx, d.ID); err != nil {
		t.Fatalf("MarkTrusted: %v", err)
	}
	return d.ID
}

func (f *fixture) code(t *testing.T, challengeID string) string {
	t.Helper()
	code, ok := f.codes.Get(context.Background(), challengeID)
	if !ok {
		t.Fatalf("no code recorded for challenge %s", challengeID)
	}
	return code
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func evaluate(t *testing.T, v *Validator, at Attempt) *Outcome {
	t.Helper()
	out, err := v.Evaluate(context.Background(), at)
	if err != nil {
		t.Fatalf("Evaluate(%+v): %v", at, err)
	}
	return out
}

func assertStatus(t *testing.T, out *Outcome, want Status) {
	t.Helper()
	if out.Status != want {
		t.Fatalf("Status = %s, want %s (outcome %+v)", out.Status, want, out)
	}
	if want == StatusApproved {
		if out.Error != nil {
			t.Errorf("approved outcome carries error %+v", out.Error)
		}
		return
	}
	if out.Error == nil {
		t.Errorf("%s outcome has no error details", want)
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	for _, at := range []Attempt{{FingerprintHash: "fp"}, {UserID: "u1"}, {UserID: " ", FingerprintHash: "fp"}} {
		if _, err := f.validator.Evaluate(context.Background(), at); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Evaluate(%+v) error = %v, want ErrInvalidInput", at, err)
		}
	}
	if _, err := f.validator.ResolveChallenge(context.Background(), "", "123456"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ResolveChallenge without id: %v", err)
	}
	if _, err := f.validator.ResolveChallenge(context.Background(), "c1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ResolveChallenge without code: %v", err)
	}
}

func TestEvaluate_CleanIssuesToken(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	deviceID := f.trust(t, "u1", "fp-1")

	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1", IP: "203.0.113.1", Country: "IN", UserAgent: "ua"})
	assertStatus(t, out, StatusApproved)
	if out.Verdict != risk.Clean || out.Session == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Session.DeviceID != deviceID || out.Session.Country != "IN" {
		t.Errorf("session = %+v", out.Session)
	}
	claims, err := f.tokens.ValidateSession(out.Token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if claims.SessionID != out.Session.ID || claims.Subject != "u1" || claims.DeviceID != deviceID {
		t.Errorf("claims = %+v", claims)
	}
}

// Scenario A and B: a second device is challenged, then finds the slot taken, then replaces the first session.
func TestScenarioAB_SecondDeviceReplacesFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{maxSessions: 1})
	f.trust(t, "u1", "fp-d1")

	first := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-d1", Country: "IN"})
	assertStatus(t, first, StatusApproved)
	s1 := first.Session

	second := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-d2", Country: "IN"})
	assertStatus(t, second, StatusNewDevice)
	if second.Verdict != risk.NewDevice || second.ChallengeID == "" || second.Session != nil {
		t.Fatalf("second = %+v", second)
	}
	if second.Error.Code != apierror.CodeNewDevice {
		t.Errorf("error code = %s, want %s", second.Error.Code, apierror.CodeNewDevice)
	}
	if second.RemainingAttempts == nil || *second.RemainingAttempts != 5 {
		t.Errorf("RemainingAttempts = %v, want 5", second.RemainingAttempts)
	}

	resolved, err := f.validator.ResolveChallenge(ctx, second.ChallengeID, f.code(t, second.ChallengeID))
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	assertStatus(t, resolved, StatusTooManyDevices)
	if len(resolved.ActiveSessions) != 1 || resolved.ActiveSessions[0].ID != s1.ID {
		t.Fatalf("ActiveSessions = %+v, want [%s]", resolved.ActiveSessions, s1.ID)
	}
	if resolved.Error.Code != apierror.CodeMultipleActiveSessions {
		t.Errorf("error code = %s", resolved.Error.Code)
	}
	d2, found, err := f.devices.Lookup(ctx, "u1", "fp-d2")
	if err != nil || !found || !d2.Trusted {
		t.Fatalf("device d2 should be trusted after the challenge: %+v, %v, %v", d2, found, err)
	}

	replaced, err := f.validator.ResolveTooManyDevices(ctx, Attempt{UserID: "u1", FingerprintHash: "fp-d2", Country: "IN"}, true)
	if err != nil {
		t.Fatalf("ResolveTooManyDevices: %v", err)
	}
	assertStatus(t, replaced, StatusApproved)
	if replaced.Session.DeviceID != d2.ID || replaced.Token == "" {
		t.Errorf("replaced = %+v", replaced)
	}
	old, err := f.sessions.Get(ctx, s1.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if old.Active || old.TerminationReason != sessiondomain.ReasonReplaced {
		t.Errorf("s1 = active %v reason %q, want inactive replaced", old.Active, old.TerminationReason)
	}
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 1 {
		t.Errorf("CountActive = %d, want 1", n)
	}
	if f.audit.count("session_terminated") != 1 {
		t.Errorf("session_terminated audited %d times, want 1", f.audit.count("session_terminated"))
	}
}

func TestResolveTooManyDevices_Declined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	f.trust(t, "u1", "fp-1")
	f.trust(t, "u1", "fp-2")
	assertStatus(t, evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1"}), StatusApproved)
	assertStatus(t, evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-2"}), StatusTooManyDevices)

	out, err := f.validator.ResolveTooManyDevices(ctx, Attempt{UserID: "u1", FingerprintHash: "fp-2"}, false)
	if err != nil {
		t.Fatalf("ResolveTooManyDevices: %v", err)
	}
	assertStatus(t, out, StatusRejected)
	if out.RejectReason != RejectDeclined || out.Error.Code != apierror.CodeMaxDevicesReached {
		t.Errorf("outcome = %+v", out)
	}
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 1 {
		t.Errorf("CountActive = %d, want 1", n)
	}
	if f.audit.count("login_rejected") != 1 {
		t.Errorf("login_rejected audited %d times, want 1", f.audit.count("login_rejected"))
	}
}

func TestResolveTooManyDevices_UntrustedDeviceIsChallenged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	f.trust(t, "u1", "fp-1")
	assertStatus(t, evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1"}), StatusApproved)

	out, err := f.validator.ResolveTooManyDevices(ctx, Attempt{UserID: "u1", FingerprintHash: "fp-unknown"}, true)
	if err != nil {
		t.Fatalf("ResolveTooManyDevices: %v", err)
	}
	assertStatus(t, out, StatusNewDevice)
	if out.ChallengeID == "" {
		t.Error("untrusted device should receive a challenge")
	}
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 1 {
		t.Errorf("existing session was terminated: CountActive = %d", n)
	}
}

// Scenario C: concurrent clean logins on a trusted device race for one slot.
func TestScenarioC_ConcurrentCleanLogins(t *testing.T) {
	f := newFixture(t, fixtureOptions{maxSessions: 1})
	f.trust(t, "u1", "fp-1")

	var wg sync.WaitGroup
	results := make([]*Outcome, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.validator.Evaluate(context.Background(), Attempt{UserID: "u1", FingerprintHash: "fp-1"})
			if err != nil {
				t.Errorf("Evaluate: %v", err)
				return
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	counts := map[Status]int{}
	for _, out := range results {
		if out != nil {
			counts[out.Status]++
		}
	}
	if counts[StatusApproved] != 1 || counts[StatusTooManyDevices] != 1 {
		t.Errorf("statuses = %v, want one APPROVED and one TOO_MANY_DEVICES", counts)
	}
}

func TestEvaluate_ConcurrentInvariant(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		f := newFixture(t, fixtureOptions{maxSessions: limit})
		fps := []string{"fp-a", "fp-b", "fp-c", "fp-d", "fp-e"}
		for _, fp := range fps {
			f.trust(t, "u1", fp)
		}

		const workers = 40
		var wg sync.WaitGroup
		var mu sync.Mutex
		approved := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, err := f.validator.Evaluate(context.Background(), Attempt{UserID: "u1", FingerprintHash: fps[i%len(fps)]})
				if err != nil {
					t.Errorf("Evaluate: %v", err)
					return
				}
				if out.Status == StatusApproved {
					mu.Lock()
					approved++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		n, err := f.sessions.CountActive(context.Background(), "u1")
		if err != nil {
			t.Fatalf("CountActive: %v", err)
		}
		if n != limit || approved != limit {
			t.Errorf("limit %d: CountActive = %d, approved = %d", limit, n, approved)
		}
	}
}

// Scenario D: five wrong codes exhaust the challenge; the correct code is refused afterwards.
func TestScenarioD_AttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-new"})
	assertStatus(t, out, StatusNewDevice)
	code := f.code(t, out.ChallengeID)

	for i := 1; i <= 4; i++ {
		got, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, wrongCode(code))
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		assertStatus(t, got, StatusOTPRequired)
		if got.RemainingAttempts == nil || *got.RemainingAttempts != 5-i {
			t.Errorf("attempt %d: RemainingAttempts = %v, want %d", i, got.RemainingAttempts, 5-i)
		}
		if got.Error.Code != apierror.CodeOTPRequired {
			t.Errorf("attempt %d: error code = %s", i, got.Error.Code)
		}
	}

	fifth, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, wrongCode(code))
	if err != nil {
		t.Fatalf("attempt 5: %v", err)
	}
	assertStatus(t, fifth, StatusRejected)
	if fifth.RejectReason != RejectAttemptsExceeded {
		t.Errorf("attempt 5: RejectReason = %s", fifth.RejectReason)
	}

	sixth, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("attempt 6: %v", err)
	}
	assertStatus(t, sixth, StatusRejected)
	if sixth.RejectReason != RejectAttemptsExceeded || sixth.Session != nil {
		t.Errorf("attempt 6 = %+v", sixth)
	}
	d, _, _ := f.devices.Lookup(ctx, "u1", "fp-new")
	if d.Trusted {
		t.Error("device trusted after exhausted challenge")
	}
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 0 {
		t.Errorf("CountActive = %d, want 0", n)
	}
}

func TestResolveChallenge_SingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{maxSessions: 2})
	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-new"})
	code := f.code(t, out.ChallengeID)

	first, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	assertStatus(t, first, StatusApproved)
	if first.Verdict != risk.NewDevice {
		t.Errorf("Verdict = %s, want NEW_DEVICE", first.Verdict)
	}

	second, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("second ResolveChallenge: %v", err)
	}
	assertStatus(t, second, StatusRejected)
	if second.RejectReason != RejectAlreadyConsumed {
		t.Errorf("RejectReason = %s, want ALREADY_CONSUMED", second.RejectReason)
	}
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 1 {
		t.Errorf("CountActive = %d, want 1", n)
	}
}

// flakyAdmitRepo fails the next n admissions.
type flakyAdmitRepo struct {
	*sessionrepo.MemoryRepository
	mu sync.Mutex
	n  int
}

func (r *flakyAdmitRepo) Admit(ctx context.Context, s *sessiondomain.Session, maxActive int, now time.Time) (bool, error) {
	r.mu.Lock()
	if r.n > 0 {
		r.n--
		r.mu.Unlock()
		return false, errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.MemoryRepository.Admit(ctx, s, maxActive, now)
}

func TestResolveChallenge_ResumesAfterAdmitFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyAdmitRepo{MemoryRepository: sessionrepo.NewMemoryRepository(), n: 1}
	f := newFixture(t, fixtureOptions{sessionRepo: repo})
	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-new"})
	code := f.code(t, out.ChallengeID)
	c, err := f.validator.challenges.Get(ctx, out.ChallengeID)
	if err != nil {
		t.Fatalf("Get challenge: %v", err)
	}

	if _, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code); err == nil {
		t.Fatal("ResolveChallenge succeeded despite failing admission")
	}
	if p, _ := f.pending.Get(ctx, c.PendingSessionRef); p == nil {
		t.Fatal("pending login discarded after failed admission")
	}

	wrong, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, wrongCode(code))
	if err != nil {
		t.Fatalf("ResolveChallenge with wrong code: %v", err)
	}
	assertStatus(t, wrong, StatusRejected)
	if wrong.RejectReason != RejectAlreadyConsumed {
		t.Errorf("RejectReason = %s, want ALREADY_CONSUMED", wrong.RejectReason)
	}

	got, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("retry ResolveChallenge: %v", err)
	}
	assertStatus(t, got, StatusApproved)
	if got.Token == "" {
		t.Error("resumed login carries no token")
	}
	if p, _ := f.pending.Get(ctx, c.PendingSessionRef); p != nil {
		t.Error("pending login kept after admission")
	}

	again, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("third ResolveChallenge: %v", err)
	}
	assertStatus(t, again, StatusRejected)
	if n, _ := f.sessions.CountActive(ctx, "u1"); n != 1 {
		t.Errorf("CountActive = %d, want 1", n)
	}
}

func TestResolveChallenge_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{challengeTTL: 20 * time.Millisecond})
	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-new"})
	code := f.code(t, out.ChallengeID)
	time.Sleep(50 * time.Millisecond)

	got, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, code)
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	assertStatus(t, got, StatusRejected)
	if got.RejectReason != RejectExpired {
		t.Errorf("RejectReason = %s, want EXPIRED", got.RejectReason)
	}
}

func TestResolveChallenge_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	if _, err := f.validator.ResolveChallenge(ctx, "missing", "123456"); !errors.Is(err, challenge.ErrChallengeNotFound) {
		t.Errorf("unknown challenge: %v, want ErrChallengeNotFound", err)
	}

	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-new"})
	n, err := f.pending.DeleteExpired(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
	if _, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, f.code(t, out.ChallengeID)); !errors.Is(err, ErrPendingLoginNotFound) {
		t.Errorf("missing pending login: %v, want ErrPendingLoginNotFound", err)
	}
}

func TestEvaluate_SuspiciousLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{maxSessions: 2})
	f.trust(t, "u1", "fp-1")
	f.trust(t, "u1", "fp-2")
	assertStatus(t, evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1", Country: "IN"}), StatusApproved)

	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-2", Country: "us"})
	assertStatus(t, out, StatusSuspiciousLocation)
	if out.Error.Code != apierror.CodeSuspiciousLocation {
		t.Errorf("error code = %s", out.Error.Code)
	}
	resolved, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, f.code(t, out.ChallengeID))
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	assertStatus(t, resolved, StatusApproved)
	if resolved.Session.Country != "us" {
		t.Errorf("session country = %q", resolved.Session.Country)
	}

	same := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1", Country: "XX"})
	assertStatus(t, same, StatusTooManyDevices)
}

func TestEvaluate_RequireOTPFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	f.trust(t, "u1", "fp-1")
	if err := f.flags.SetRequireOTP(ctx, "u1", true, time.Now()); err != nil {
		t.Fatalf("SetRequireOTP: %v", err)
	}

	out := evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1"})
	assertStatus(t, out, StatusSuspiciousLocation)
	resolved, err := f.validator.ResolveChallenge(ctx, out.ChallengeID, f.code(t, out.ChallengeID))
	if err != nil {
		t.Fatalf("ResolveChallenge: %v", err)
	}
	assertStatus(t, resolved, StatusApproved)
	if required, _ := f.flags.RequireOTP(ctx, "u1"); required {
		t.Error("RequireOTP flag should be cleared after a passed challenge")
	}
}

func TestFinalize_UntrustedDevice(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.devices.Register(context.Background(), "u1", "fp-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	out, err := f.validator.Finalize(context.Background(), Attempt{UserID: "u1", FingerprintHash: "fp-1"})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	assertStatus(t, out, StatusNewDevice)
	if out.Session != nil {
		t.Error("untrusted device must not be admitted")
	}
}

func TestValidator_Metrics(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.trust(t, "u1", "fp-1")
	evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-1"})
	evaluate(t, f.validator, Attempt{UserID: "u1", FingerprintHash: "fp-2"})

	for _, name := range []string{"session_trust_login_verdicts_total", "session_trust_login_outcomes_total"} {
		got, err := testutil.GatherAndCount(f.metrics.Registry(), name)
		if err != nil {
			t.Fatalf("GatherAndCount(%s): %v", name, err)
		}
		if got != 2 {
			t.Errorf("%s series = %d, want 2", name, got)
		}
	}
}
