package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"session-trust-engine/internal/challenge/domain"
	"session-trust-engine/internal/challenge/repository"
	"session-trust-engine/internal/devotp"
)

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (n *captureNotifier) SendCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[userID] = code
	return nil
}

func (n *captureNotifier) last(userID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[userID]
}

func newTestService(t *testing.T) (*Service, *captureNotifier, *time.Time) {
	t.Helper()
	n := &captureNotifier{}
	svc := NewService(repository.NewMemoryRepository(), n, Options{}, nil)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc.nowF = func() time.Time { return now }
	return svc, n, &now
}

func TestIssue(t *testing.T) {
	svc, n, now := newTestService(t)
	c, err := svc.Issue(context.Background(), "u1", "ref-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if c.Attempts != 0 || c.Consumed {
		t.Errorf("new challenge = %+v, want zero attempts and unconsumed", c)
	}
	if !c.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, now.Add(DefaultTTL))
	}
	code := n.last("u1")
	if len(code) != DefaultDigits {
		t.Fatalf("delivered code %q, want %d digits", code, DefaultDigits)
	}
	if c.CodeHash == code || c.CodeHash != HashCode(code) {
		t.Error("only the hash of the code may be stored")
	}
}

func TestIssue_InvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Issue(context.Background(), "", "ref"); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("Issue error = %v, want ErrInvalidChallenge", err)
	}
	if _, err := svc.Issue(context.Background(), "u1", ""); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("Issue error = %v, want ErrInvalidChallenge", err)
	}
}

func TestIssue_DeliveryFailure(t *testing.T) {
	svc, n, _ := newTestService(t)
	n.err = errors.New("smtp down")
	if _, err := svc.Issue(context.Background(), "u1", "ref"); !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("Issue error = %v, want ErrDeliveryFailed", err)
	}

	// Dev store keeps the flow usable when delivery is not configured properly.
	store := devotp.NewMemoryStore()
	svc.WithDevStore(store)
	c, err := svc.Issue(context.Background(), "u1", "ref")
	if err != nil {
		t.Fatalf("Issue with dev store: %v", err)
	}
	if _, ok := store.Get(context.Background(), c.ID); !ok {
		t.Error("dev store should hold the code")
	}
}

func TestVerify_Success(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")

	res, err := svc.Verify(ctx, c.ID, n.last("u1"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.OK || res.Reason != domain.ReasonNone {
		t.Fatalf("Verify = %+v, want ok", res)
	}
	if res.Challenge.PendingSessionRef != "ref" {
		t.Errorf("PendingSessionRef = %q, want ref", res.Challenge.PendingSessionRef)
	}

	res, err = svc.Verify(ctx, c.ID, n.last("u1"))
	if err != nil {
		t.Fatalf("Verify again: %v", err)
	}
	if res.OK || res.Reason != domain.ReasonAlreadyConsumed {
		t.Errorf("second Verify = %+v, want ALREADY_CONSUMED", res)
	}
}

func TestVerify_Expired(t *testing.T) {
	svc, n, now := newTestService(t)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")

	later := now.Add(DefaultTTL + time.Second)
	svc.nowF = func() time.Time { return later }
	res, err := svc.Verify(ctx, c.ID, n.last("u1"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.OK || res.Reason != domain.ReasonExpired {
		t.Errorf("Verify = %+v, want EXPIRED", res)
	}
}

func TestVerify_AttemptsExhausted(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")
	code := n.last("u1")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i <= DefaultMaxAttempts; i++ {
		res, err := svc.Verify(ctx, c.ID, wrong)
		if err != nil {
			t.Fatalf("Verify %d: %v", i, err)
		}
		if res.Reason != domain.ReasonInvalidCode {
			t.Fatalf("Verify %d reason = %q, want INVALID_CODE", i, res.Reason)
		}
		if res.RemainingAttempts != DefaultMaxAttempts-i {
			t.Errorf("Verify %d remaining = %d, want %d", i, res.RemainingAttempts, DefaultMaxAttempts-i)
		}
	}
	got, _ := svc.Get(ctx, c.ID)
	if got.Consumed {
		t.Error("wrong codes must not consume the challenge")
	}
	if got.Attempts != DefaultMaxAttempts {
		t.Errorf("Attempts = %d, want %d", got.Attempts, DefaultMaxAttempts)
	}

	res, err := svc.Verify(ctx, c.ID, code)
	if err != nil {
		t.Fatalf("Verify correct after exhaustion: %v", err)
	}
	if res.OK || res.Reason != domain.ReasonAttemptsExceeded {
		t.Errorf("Verify = %+v, want ATTEMPTS_EXCEEDED", res)
	}
}

func TestVerify_UnknownChallenge(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Verify(context.Background(), "missing", "123456"); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("Verify error = %v, want ErrChallengeNotFound", err)
	}
}

func TestVerify_ConcurrentCorrectCodeSucceedsOnce(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")
	code := n.last("u1")

	const workers = 16
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Verify(ctx, c.ID, code)
			if err != nil {
				t.Errorf("Verify: %v", err)
				return
			}
			if res.OK {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful verifications = %d, want exactly 1", ok)
	}
}

func TestVerify_ConsumesDevStoreEntry(t *testing.T) {
	svc, n, _ := newTestService(t)
	store := devotp.NewMemoryStore()
	svc.WithDevStore(store)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")
	if _, err := svc.Verify(ctx, c.ID, n.last("u1")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, ok := store.Get(ctx, c.ID); ok {
		t.Error("dev store entry should be removed once consumed")
	}
}

func TestPurgeExpired(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	c, _ := svc.Issue(ctx, "u1", "ref")

	if n, _ := svc.PurgeExpired(ctx); n != 0 {
		t.Errorf("PurgeExpired before expiry = %d, want 0", n)
	}
	later := now.Add(time.Hour)
	svc.nowF = func() time.Time { return later }
	if n, _ := svc.PurgeExpired(ctx); n != 1 {
		t.Errorf("PurgeExpired after expiry = %d, want 1", n)
	}
	if _, err := svc.Get(ctx, c.ID); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("Get after purge error = %v, want ErrChallengeNotFound", err)
	}
}

func TestRunReaper_StopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReaper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunReaper did not return after cancel")
	}
}
