// Package session implements C3 (debounced state machine), C4 (PTY
// session), and the bounded output ring. The state machine is kept
// decoupled from the real PTY/vterm/verifier machinery behind small
// function fields so it can be driven by tests with fakes, per the
// testable properties around debounce, auto-approval, and cancellation.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cacd-dev/cacd/internal/classify"
	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/sessionstate"
	"github.com/cacd-dev/cacd/internal/verifier"
)

const (
	DefaultTick        = 100 * time.Millisecond
	DefaultPersistence = 500 * time.Millisecond

	// maxConsecutiveFailures is the classifier-tick circuit breaker: after
	// this many panics in a row the classifier is disabled for the
	// session and its state is pinned to idle.
	maxConsecutiveFailures = 3
)

// StateMachineConfig wires the state machine to its surrounding session.
type StateMachineConfig struct {
	Strategy            sessionstate.Strategy
	Tick                time.Duration
	Persistence         time.Duration
	AutoApprovalEnabled bool
	AutoApprovalNewline bool

	// LinesTail returns the current classifier input; normally
	// vterm.Buffer.LinesTail.
	LinesTail func(n int) []string
	// WriteNewline injects a synthetic newline into the PTY's stdin on
	// auto-approval success.
	WriteNewline func()
	// RunVerifier executes the configured verifier command; normally
	// (&verifier.Verifier{...}).Run.
	RunVerifier func(ctx context.Context) verifier.Outcome
	// OnTransition is invoked with each confirmed, distinct transition.
	OnTransition func(t eventbus.Transition)
	Log          *slog.Logger
}

// StateMachine is the C3 debounced classifier/auto-approval cycle for one
// session.
type StateMachine struct {
	cfg StateMachineConfig

	mu                 sync.Mutex
	state              sessionstate.State
	pendingState       sessionstate.State
	hasPending         bool
	pendingStateStart  time.Time
	autoApprovalFailed bool
	autoApprovalReason string
	verifierCancel     context.CancelFunc
	verifierGen        int
	consecutiveFailures int
	disabled           bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStateMachine creates a state machine starting in the idle state, per
// spec's session creation lifecycle.
func NewStateMachine(cfg StateMachineConfig) *StateMachine {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Persistence <= 0 {
		cfg.Persistence = DefaultPersistence
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &StateMachine{
		cfg:    cfg,
		state:  sessionstate.Idle,
		stopCh: make(chan struct{}),
	}
}

// Start launches the ticker goroutine. Call Stop to release it.
func (sm *StateMachine) Start() {
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		ticker := time.NewTicker(sm.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-sm.stopCh:
				return
			case <-ticker.C:
				sm.tick()
			}
		}
	}()
}

// Stop cancels the ticker and any outstanding verifier.
func (sm *StateMachine) Stop() {
	close(sm.stopCh)
	sm.wg.Wait()

	sm.mu.Lock()
	sm.cancelVerifierLocked(false, "")
	sm.mu.Unlock()
}

// Snapshot is an atomic copy of the observable auto-approval/debounce
// fields (§3 "Observable state").
type Snapshot struct {
	State              sessionstate.State
	PendingState       sessionstate.State
	HasPending         bool
	PendingStateStart  time.Time
	AutoApprovalFailed bool
	AutoApprovalReason string
}

// Snapshot returns a consistent, lock-protected copy.
func (sm *StateMachine) Snapshot() Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return Snapshot{
		State:              sm.state,
		PendingState:       sm.pendingState,
		HasPending:         sm.hasPending,
		PendingStateStart:  sm.pendingStateStart,
		AutoApprovalFailed: sm.autoApprovalFailed,
		AutoApprovalReason: sm.autoApprovalReason,
	}
}

// CancelAutoApproval aborts an outstanding verifier explicitly (from the
// manager). Outcome: autoApprovalFailed=true, reason=caller-provided, and
// the committed state remains/becomes waiting_input (property 6).
func (sm *StateMachine) CancelAutoApproval(reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != sessionstate.PendingAutoApproval {
		return
	}
	sm.cancelVerifierLocked(true, reason)
	sm.commitLocked(sessionstate.WaitingInput)
}

// tick runs one debounce cycle (§4.3), guarded against classifier panics
// (§5 failure isolation).
func (sm *StateMachine) tick() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.disabled {
		return
	}

	raw, ok := sm.safeClassify()
	if !ok {
		sm.consecutiveFailures++
		sm.cfg.Log.Error("classifier tick failed", "consecutive_failures", sm.consecutiveFailures)
		if sm.consecutiveFailures >= maxConsecutiveFailures {
			sm.disabled = true
			sm.cfg.Log.Error("classifier disabled after repeated failures")
			sm.commitLocked(sessionstate.Idle)
		}
		return
	}
	sm.consecutiveFailures = 0

	if sm.state == sessionstate.PendingAutoApproval {
		if raw == sessionstate.Idle || raw == sessionstate.Busy {
			sm.cancelVerifierLocked(false, "")
			sm.commitLocked(raw)
		}
		return
	}

	if raw == sm.state {
		sm.hasPending = false
		return
	}

	if sm.hasPending && raw == sm.pendingState {
		if time.Since(sm.pendingStateStart) >= sm.cfg.Persistence {
			sm.hasPending = false
			if raw == sessionstate.WaitingInput && sm.cfg.AutoApprovalEnabled {
				sm.commitLocked(sessionstate.PendingAutoApproval)
				sm.spawnVerifierLocked()
			} else {
				sm.commitLocked(raw)
			}
		}
		return
	}

	sm.pendingState = raw
	sm.pendingStateStart = time.Now()
	sm.hasPending = true
}

func (sm *StateMachine) safeClassify() (raw sessionstate.State, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	tail := sm.cfg.LinesTail(30)
	return classify.Classify(sm.cfg.Strategy, tail, sm.state), true
}

// commitLocked sets the confirmed state and emits a transition exactly
// once per change (I4). Must be called with mu held.
func (sm *StateMachine) commitLocked(next sessionstate.State) {
	old := sm.state
	sm.state = next
	sm.hasPending = false
	if old == next {
		return
	}
	if sm.cfg.OnTransition != nil {
		sm.cfg.OnTransition(eventbus.Transition{
			From:               old,
			To:                 next,
			AutoApprovalFailed: sm.autoApprovalFailed,
			AutoApprovalReason: sm.autoApprovalReason,
		})
	}
}

// spawnVerifierLocked starts a new cancellable verifier run (I3: starting
// a new one cancels the previous — callers must have already cancelled
// any prior run before reaching here, which is always true on this path
// since the state only reaches PendingAutoApproval via this function).
func (sm *StateMachine) spawnVerifierLocked() {
	sm.verifierGen++
	gen := sm.verifierGen
	ctx, cancel := context.WithCancel(context.Background())
	sm.verifierCancel = cancel

	runVerifier := sm.cfg.RunVerifier
	go func() {
		outcome := runVerifier(ctx)
		sm.onVerifierResult(gen, outcome)
	}()
}

func (sm *StateMachine) onVerifierResult(gen int, outcome verifier.Outcome) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if gen != sm.verifierGen {
		return // superseded by a cancel or a newer verifier run
	}
	sm.verifierCancel = nil

	if outcome.Kind == verifier.KindPass {
		sm.autoApprovalFailed = false
		sm.autoApprovalReason = ""
		if sm.cfg.AutoApprovalNewline && sm.cfg.WriteNewline != nil {
			sm.cfg.WriteNewline()
		}
		sm.commitLocked(sessionstate.Busy)
		return
	}

	sm.autoApprovalFailed = true
	sm.autoApprovalReason = string(outcome.Kind)
	if outcome.Reason != "" {
		sm.autoApprovalReason = string(outcome.Kind) + ": " + outcome.Reason
	}
	sm.commitLocked(sessionstate.WaitingInput)
}

// cancelVerifierLocked stops any outstanding verifier. setFailed controls
// whether autoApprovalFailed is forced true with reason — true only for
// explicit cancellation (property 6); a supersede-cancel triggered by the
// raw classifier reverting to idle/busy leaves autoApprovalFailed as-is
// (§4.3 "autoApprovalFailed remains until superseded").
func (sm *StateMachine) cancelVerifierLocked(setFailed bool, reason string) {
	if sm.verifierCancel != nil {
		sm.verifierCancel()
		sm.verifierCancel = nil
	}
	sm.verifierGen++
	if setFailed {
		sm.autoApprovalFailed = true
		if reason != "" {
			sm.autoApprovalReason = reason
		}
	}
}
