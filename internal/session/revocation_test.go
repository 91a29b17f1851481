package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"session-trust-engine/internal/audit"
	"session-trust-engine/internal/session/domain"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAudit) LogEvent(_ context.Context, userID, action, resource, metadata string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, userID+"|"+action+"|"+resource+"|"+metadata)
}

var _ audit.AuditLogger = (*recordingAudit)(nil)

func TestRevocation_TerminateOthers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(3, time.Hour)
	rec := &recordingAudit{}
	rev := NewRevocationService(s, rec, nil)

	keep := admit(t, s, "u1", "d-keep")
	admit(t, s, "u1", "d-other")
	admit(t, s, "u1", "d-third")
	other := admit(t, s, "u2", "d-x")

	n, err := rev.TerminateOthers(ctx, "u1", "d-keep")
	if err != nil {
		t.Fatalf("TerminateOthers: %v", err)
	}
	if n != 2 {
		t.Errorf("TerminateOthers = %d, want 2", n)
	}
	active, _ := s.ListActive(ctx, "u1")
	if len(active) != 1 || active[0].ID != keep.ID {
		t.Errorf("remaining active = %v, want only the kept device", active)
	}
	if got, _ := s.Get(ctx, other.ID); !got.Active {
		t.Error("other user's session must not be touched")
	}
	if len(rec.events) != 2 {
		t.Errorf("audit events = %v, want 2", rec.events)
	}

	n, _ = rev.TerminateOthers(ctx, "u1", "d-keep")
	if n != 0 {
		t.Errorf("repeat TerminateOthers = %d, want 0", n)
	}
}

func TestRevocation_TerminateAll(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(2, time.Hour)
	rev := NewRevocationService(s, nil, nil)

	a := admit(t, s, "u1", "d1")
	admit(t, s, "u1", "d2")

	n, err := rev.TerminateAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("TerminateAll = %d, %v; want 2", n, err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.TerminationReason != domain.ReasonTerminateAll {
		t.Errorf("TerminationReason = %q, want %q", got.TerminationReason, domain.ReasonTerminateAll)
	}
	if c, _ := s.CountActive(ctx, "u1"); c != 0 {
		t.Errorf("CountActive = %d, want 0", c)
	}
}

func TestRevocation_TerminateSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(2, time.Hour)
	rev := NewRevocationService(s, nil, nil)

	mine := admit(t, s, "u1", "d1")
	theirs := admit(t, s, "u2", "d2")

	if err := rev.TerminateSession(ctx, theirs.ID, "u1", false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("TerminateSession other user = %v, want ErrForbidden", err)
	}
	if got, _ := s.Get(ctx, theirs.ID); !got.Active {
		t.Fatal("forbidden terminate must not change the session")
	}
	if err := rev.TerminateSession(ctx, mine.ID, "u1", false); err != nil {
		t.Fatalf("TerminateSession own: %v", err)
	}
	if got, _ := s.Get(ctx, mine.ID); got.Active || got.TerminationReason != domain.ReasonUserRequested {
		t.Errorf("own session = %+v", got)
	}
	if err := rev.TerminateSession(ctx, theirs.ID, "admin-1", true); err != nil {
		t.Fatalf("TerminateSession admin: %v", err)
	}
	if got, _ := s.Get(ctx, theirs.ID); got.TerminationReason != domain.ReasonAdmin {
		t.Errorf("admin termination reason = %q", got.TerminationReason)
	}
	if err := rev.TerminateSession(ctx, "missing", "u1", true); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("TerminateSession unknown = %v, want ErrSessionNotFound", err)
	}
}
