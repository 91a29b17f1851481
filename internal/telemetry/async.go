package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest a shutdown should wait in Drain before closing the
// emitters. It covers one full emitTimeout.
const ShutdownDrainDuration = emitTimeout

// pending counts background emits. idle is closed whenever the count drops to zero.
type pending struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (p *pending) add() {
	p.mu.Lock()
	if p.n == 0 {
		p.idle = make(chan struct{})
	}
	p.n++
	p.mu.Unlock()
}

func (p *pending) done() {
	p.mu.Lock()
	p.n--
	if p.n == 0 {
		close(p.idle)
	}
	p.mu.Unlock()
}

func (p *pending) wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.idle
}

var inflight pending

// EmitAsync sends event in the background and returns at once. The emit runs on a fresh
// context bounded by emitTimeout, so a finished request does not cancel it. Failures are
// logged. A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.add()
	go func() {
		defer inflight.done()
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Warn("telemetry: async emit failed", "event_type", event.EventType, "error", err)
		}
	}()
}

// Drain waits until every emit started by EmitAsync has finished or ctx is done, and reports
// whether all of them finished.
func Drain(ctx context.Context) bool {
	select {
	case <-inflight.wait():
		return true
	case <-ctx.Done():
		return false
	}
}
