package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/sessionstate"
	"github.com/cacd-dev/cacd/internal/verifier"
)

// fakeLines lets tests drive the classifier input deterministically.
type fakeLines struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeLines) set(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = lines
}

func (f *fakeLines) tail(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func collectTransitions() (func(eventbus.Transition), func() []eventbus.Transition) {
	var mu sync.Mutex
	var got []eventbus.Transition
	onTransition := func(t eventbus.Transition) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, t)
	}
	snapshot := func() []eventbus.Transition {
		mu.Lock()
		defer mu.Unlock()
		out := make([]eventbus.Transition, len(got))
		copy(out, got)
		return out
	}
	return onTransition, snapshot
}

func TestDebounce_ShortLivedRawDoesNotCommit(t *testing.T) {
	// Property 2.
	lines := &fakeLines{}
	lines.set("nothing interesting")
	onTransition, transitions := collectTransitions()

	sm := NewStateMachine(StateMachineConfig{
		Strategy:     sessionstate.StrategyClaude,
		Tick:         5 * time.Millisecond,
		Persistence:  200 * time.Millisecond,
		LinesTail:    lines.tail,
		OnTransition: onTransition,
	})
	sm.Start()
	defer sm.Stop()

	// Flip to a waiting_input-raw line for much less than the persistence
	// window, then flip back to idle-raw before it can commit.
	lines.set("Esc to cancel")
	time.Sleep(40 * time.Millisecond)
	lines.set("↵ send")
	time.Sleep(40 * time.Millisecond)

	if got := sm.Snapshot().State; got != sessionstate.Idle {
		t.Fatalf("expected state to remain idle, got %s", got)
	}
	if len(transitions()) != 0 {
		t.Fatalf("expected no transitions, got %v", transitions())
	}
}

func TestNoDuplicateTransitions(t *testing.T) {
	// Property 3.
	lines := &fakeLines{}
	lines.set("esc to cancel")
	onTransition, transitions := collectTransitions()

	sm := NewStateMachine(StateMachineConfig{
		Strategy:     sessionstate.StrategyClaude,
		Tick:         5 * time.Millisecond,
		Persistence:  20 * time.Millisecond,
		LinesTail:    lines.tail,
		OnTransition: onTransition,
	})
	sm.Start()
	defer sm.Stop()

	time.Sleep(200 * time.Millisecond)

	ts := transitions()
	if len(ts) != 1 {
		t.Fatalf("expected exactly one committed transition, got %d: %v", len(ts), ts)
	}
	if ts[0].To != sessionstate.WaitingInput {
		t.Fatalf("expected waiting_input, got %s", ts[0].To)
	}
}

func TestAutoApproval_HappyPath(t *testing.T) {
	// Property 5 / scenario S5.
	lines := &fakeLines{}
	lines.set("esc to cancel")
	onTransition, transitions := collectTransitions()
	var newlineWritten int32

	sm := NewStateMachine(StateMachineConfig{
		Strategy:            sessionstate.StrategyClaude,
		Tick:                5 * time.Millisecond,
		Persistence:         20 * time.Millisecond,
		AutoApprovalEnabled: true,
		AutoApprovalNewline: true,
		LinesTail:           lines.tail,
		// The agent reacts to the newline: the prompt gives way to a busy
		// line, as a real terminal would show after the approval.
		WriteNewline: func() {
			atomic.AddInt32(&newlineWritten, 1)
			lines.set("ctrl+c to interrupt")
		},
		RunVerifier: func(ctx context.Context) verifier.Outcome {
			time.Sleep(40 * time.Millisecond)
			return verifier.Outcome{Kind: verifier.KindPass}
		},
		OnTransition: onTransition,
	})
	sm.Start()
	defer sm.Stop()

	time.Sleep(300 * time.Millisecond)

	ts := transitions()
	var seen []sessionstate.State
	for _, t := range ts {
		seen = append(seen, t.To)
	}
	if len(seen) != 2 || seen[0] != sessionstate.PendingAutoApproval || seen[1] != sessionstate.Busy {
		t.Fatalf("expected [pending_auto_approval busy], got %v", seen)
	}
	if atomic.LoadInt32(&newlineWritten) != 1 {
		t.Fatalf("expected exactly one synthetic newline, got %d", newlineWritten)
	}
	if sm.Snapshot().AutoApprovalFailed {
		t.Fatal("expected autoApprovalFailed=false after a successful cycle")
	}
}

func TestAutoApproval_HangingVerifierStaysPendingUntilCancelled(t *testing.T) {
	// A verifier that never returns on its own keeps the session in
	// pending_auto_approval; an explicit cancel then commits
	// waiting_input with the caller-provided reason.
	lines := &fakeLines{}
	lines.set("esc to cancel")
	onTransition, transitions := collectTransitions()

	sm := NewStateMachine(StateMachineConfig{
		Strategy:            sessionstate.StrategyClaude,
		Tick:                5 * time.Millisecond,
		Persistence:         20 * time.Millisecond,
		AutoApprovalEnabled: true,
		LinesTail:           lines.tail,
		RunVerifier: func(ctx context.Context) verifier.Outcome {
			<-ctx.Done()
			return verifier.Outcome{Kind: verifier.KindTimeout, Reason: "exceeded"}
		},
		OnTransition: onTransition,
	})
	sm.Start()
	defer sm.Stop()

	time.Sleep(300 * time.Millisecond)

	snap := sm.Snapshot()
	if snap.State != sessionstate.PendingAutoApproval {
		t.Fatalf("expected still pending while verifier hangs, got %s", snap.State)
	}

	sm.CancelAutoApproval("test-forced-timeout")
	snap = sm.Snapshot()
	if snap.State != sessionstate.WaitingInput {
		t.Fatalf("expected waiting_input after cancel, got %s", snap.State)
	}
	if !snap.AutoApprovalFailed {
		t.Fatal("expected autoApprovalFailed=true")
	}
	if snap.AutoApprovalReason != "test-forced-timeout" {
		t.Fatalf("expected caller-provided reason, got %q", snap.AutoApprovalReason)
	}
}

func TestCancellation_ClearsToIdleAfterwards(t *testing.T) {
	// Property 6.
	lines := &fakeLines{}
	lines.set("esc to cancel")

	sm := NewStateMachine(StateMachineConfig{
		Strategy:            sessionstate.StrategyClaude,
		Tick:                5 * time.Millisecond,
		Persistence:         20 * time.Millisecond,
		AutoApprovalEnabled: true,
		LinesTail:           lines.tail,
		RunVerifier: func(ctx context.Context) verifier.Outcome {
			<-ctx.Done()
			return verifier.Outcome{Kind: verifier.KindTimeout}
		},
	})
	sm.Start()
	defer sm.Stop()

	time.Sleep(100 * time.Millisecond)
	sm.CancelAutoApproval("explicit")

	snap := sm.Snapshot()
	if snap.State != sessionstate.WaitingInput || !snap.AutoApprovalFailed {
		t.Fatalf("expected waiting_input/failed after cancel, got %+v", snap)
	}

	lines.set("↵ send")
	time.Sleep(100 * time.Millisecond)
	if got := sm.Snapshot().State; got != sessionstate.Idle {
		t.Fatalf("expected idle after subsequent idle classification, got %s", got)
	}
}

func TestSupersedeCancel_DoesNotTouchAutoApprovalFailed(t *testing.T) {
	lines := &fakeLines{}
	lines.set("esc to cancel")

	sm := NewStateMachine(StateMachineConfig{
		Strategy:            sessionstate.StrategyClaude,
		Tick:                5 * time.Millisecond,
		Persistence:         20 * time.Millisecond,
		AutoApprovalEnabled: true,
		LinesTail:           lines.tail,
		RunVerifier: func(ctx context.Context) verifier.Outcome {
			<-ctx.Done()
			return verifier.Outcome{Kind: verifier.KindTimeout}
		},
	})
	sm.Start()
	defer sm.Stop()

	time.Sleep(100 * time.Millisecond)
	if sm.Snapshot().State != sessionstate.PendingAutoApproval {
		t.Fatal("expected to be pending before superseding")
	}

	lines.set("↵ send")
	time.Sleep(50 * time.Millisecond)

	snap := sm.Snapshot()
	if snap.State != sessionstate.Idle {
		t.Fatalf("expected idle after supersede, got %s", snap.State)
	}
	if snap.AutoApprovalFailed {
		t.Fatal("supersede-cancel must not set autoApprovalFailed")
	}
}
