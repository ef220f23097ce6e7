package classify

import (
	"testing"

	"github.com/cacd-dev/cacd/internal/sessionstate"
)

func TestClaude_WaitingPrompt(t *testing.T) {
	// Scenario S1.
	tail := []string{"Do you want to proceed?", "", "❯ Yes"}
	got := Classify(sessionstate.StrategyClaude, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestClaude_HistorySearchPreservesState(t *testing.T) {
	tail := []string{"(ctrl+r to toggle)"}
	got := Classify(sessionstate.StrategyClaude, tail, sessionstate.Busy)
	if got != sessionstate.Busy {
		t.Errorf("expected preserved busy state, got %s", got)
	}
}

func TestClaude_Busy(t *testing.T) {
	tail := []string{"working... (ctrl+c to interrupt)"}
	got := Classify(sessionstate.StrategyClaude, tail, sessionstate.Idle)
	if got != sessionstate.Busy {
		t.Errorf("expected busy, got %s", got)
	}
}

func TestClaude_Idle(t *testing.T) {
	tail := []string{"> ↵ send"}
	got := Classify(sessionstate.StrategyClaude, tail, sessionstate.Busy)
	if got != sessionstate.Idle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestCodex_ConfirmPrompt(t *testing.T) {
	// Scenario S2.
	tail := []string{"Press Enter to confirm or Esc to cancel"}
	got := Classify(sessionstate.StrategyCodex, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestCodex_Busy(t *testing.T) {
	tail := []string{"thinking... esc to interrupt"}
	got := Classify(sessionstate.StrategyCodex, tail, sessionstate.Idle)
	if got != sessionstate.Busy {
		t.Errorf("expected busy, got %s", got)
	}
}

func TestGemini_Busy(t *testing.T) {
	// Scenario S3.
	tail := []string{"Running...", "Esc to cancel"}
	got := Classify(sessionstate.StrategyGemini, tail, sessionstate.Idle)
	if got != sessionstate.Busy {
		t.Errorf("expected busy, got %s", got)
	}
}

func TestGemini_WaitingOnApplyChange(t *testing.T) {
	tail := []string{"│ Apply this change?"}
	got := Classify(sessionstate.StrategyGemini, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestCursor_WaitingAndBusy(t *testing.T) {
	if got := Classify(sessionstate.StrategyCursor, []string{"(y) (enter)"}, sessionstate.Idle); got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
	if got := Classify(sessionstate.StrategyCursor, []string{"Auto Fix (shift+tab)"}, sessionstate.Idle); got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input for auto shift+tab, got %s", got)
	}
	if got := Classify(sessionstate.StrategyCursor, []string{"ctrl+c to stop"}, sessionstate.Idle); got != sessionstate.Busy {
		t.Errorf("expected busy, got %s", got)
	}
}

func TestGithubCopilot_Waiting(t *testing.T) {
	tail := []string{"│ Do you want to apply this suggestion?"}
	got := Classify(sessionstate.StrategyGithubCopilot, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestCline_DefaultFallbackIsBusy(t *testing.T) {
	got := Classify(sessionstate.StrategyCline, []string{"doing work"}, sessionstate.Idle)
	if got != sessionstate.Busy {
		t.Errorf("expected busy fallback, got %s", got)
	}
}

func TestCline_ReadyBannerIsIdle(t *testing.T) {
	got := Classify(sessionstate.StrategyCline, []string{"Ready for your message"}, sessionstate.Busy)
	if got != sessionstate.Idle {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestCline_ModeWithYesBelow(t *testing.T) {
	tail := []string{"[act mode]", "proceed?", "yes"}
	got := Classify(sessionstate.StrategyCline, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestPi_YesNo(t *testing.T) {
	// Scenario S4.
	tail := []string{"Do you want to continue? [y/n]"}
	got := Classify(sessionstate.StrategyPi, tail, sessionstate.Idle)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected waiting_input, got %s", got)
	}
}

func TestPi_Busy(t *testing.T) {
	tail := []string{"esc to interrupt"}
	got := Classify(sessionstate.StrategyPi, tail, sessionstate.Idle)
	if got != sessionstate.Busy {
		t.Errorf("expected busy, got %s", got)
	}
}

func TestUnknown_PreservesState(t *testing.T) {
	got := Classify(sessionstate.StrategyUnknown, []string{"anything at all"}, sessionstate.WaitingInput)
	if got != sessionstate.WaitingInput {
		t.Errorf("expected preserved state, got %s", got)
	}
}

// TestPurity verifies property 1: classify is a pure function with no
// side effects — repeated calls with identical input return identical
// output.
func TestPurity(t *testing.T) {
	tail := []string{"Do you want to proceed?", "", "❯ Yes"}
	first := Classify(sessionstate.StrategyClaude, tail, sessionstate.Idle)
	for i := 0; i < 100; i++ {
		if got := Classify(sessionstate.StrategyClaude, tail, sessionstate.Idle); got != first {
			t.Fatalf("classify is not pure: call %d returned %s, first was %s", i, got, first)
		}
	}
}
