// Package sessionstate defines the small state vocabulary shared by the
// classifiers, the debounced state machine, the session manager, and the
// remote gateway.
package sessionstate

// State is a session's observable lifecycle state.
type State string

const (
	Idle                State = "idle"
	Busy                State = "busy"
	WaitingInput        State = "waiting_input"
	PendingAutoApproval State = "pending_auto_approval"
)

// Strategy identifies which per-agent classifier rule set to apply.
type Strategy string

const (
	StrategyClaude         Strategy = "claude"
	StrategyCodex          Strategy = "codex"
	StrategyGemini         Strategy = "gemini"
	StrategyCursor         Strategy = "cursor"
	StrategyGithubCopilot  Strategy = "github-copilot"
	StrategyCline          Strategy = "cline"
	StrategyPi             Strategy = "pi"
	StrategyUnknown        Strategy = "unknown"
)
