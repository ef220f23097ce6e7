// Package classify implements the per-agent state classifiers (C2). Each
// classifier is a pure function: given the last N rendered terminal lines
// and the current confirmed state, it returns a raw classification. All
// persistence (debouncing, commit) lives in the state machine, not here.
//
// The rule text below is taken verbatim from the specification and kept
// in one place, as constants, rather than reconstructed ad hoc — the
// rules are terse and case-sensitive in places and must not drift.
package classify

import (
	"regexp"
	"strings"

	"github.com/cacd-dev/cacd/internal/sessionstate"
)

const (
	claudeHistorySearch  = "ctrl+r to toggle"
	claudeEscToCancel    = "esc to cancel"
	claudeCtrlCInterrupt = "ctrl+c to interrupt"
	claudeEscInterrupt   = "esc to interrupt"
	claudeEnterToSend    = "↵ send"

	codexConfirmOrCancel = "press enter to confirm or esc to cancel"
	codexAllowCommand    = "allow command?"
	codexYN              = "[y/n]"
	codexYesY            = "yes (y)"

	geminiWaitingConfirmation = "waiting for user confirmation"
	geminiApplyChange         = "│ apply this change"
	geminiAllowExecution      = "│ allow execution"
	geminiDoYouWantToProceed  = "│ do you want to proceed"
	geminiEscToCancel         = "esc to cancel"

	cursorYEnter       = "(y) (enter)"
	cursorKeepN        = "keep (n)"
	cursorCtrlCToStop  = "ctrl+c to stop"

	copilotDoYouWant = "│ do you want"
	copilotEscCancel = "esc to cancel"

	clineActMode      = "[act mode]"
	clinePlanMode     = "[plan mode]"
	clineYes          = "yes"
	clineLetClineUse  = "let cline use this tool"
	clineReadyBanner  = "ready for your message"

	piYN = "[y/n]"
)

// confirmWithEnter is shared by codex and github-copilot: a phrase
// inviting the user to press Enter to confirm, distinct from the
// longer "...or esc to cancel" variant matched separately.
var confirmWithEnter = regexp.MustCompile(`(?i)press enter to confirm`)

// doYouWantYes matches the compound "do you want / would you like" prompt
// followed (possibly several lines later) by a "yes" or the claude-style
// "❯" selection marker, shared by claude/codex/gemini.
var doYouWantYes = regexp.MustCompile(`(?is)(do you want|would you like).+\n+[\s\S]*?(yes|❯)`)

var escInterruptAny = regexp.MustCompile(`(?i)esc.*interrupt`)

var autoShiftTab = regexp.MustCompile(`(?i)auto .* \(shift\+tab\)`)

var pressEnterToConfirmOrContinue = regexp.MustCompile(`(?i)press (enter|return) to (confirm|continue)`)

// piSessionSelection matches pi's session-selection prompts.
var piSessionSelection = regexp.MustCompile(`(?i)(select|choose) a session`)

// piInterruptOrCancel covers pi's three busy-indicating phrases.
var piInterruptOrCancel = regexp.MustCompile(`(?i)(ctrl\+c to interrupt|esc to interrupt|esc to cancel)`)

// Classify dispatches to the classifier named by strategy.
func Classify(strategy sessionstate.Strategy, tail []string, current sessionstate.State) sessionstate.State {
	text := strings.ToLower(strings.Join(tail, "\n"))
	switch strategy {
	case sessionstate.StrategyClaude:
		return classifyClaude(text, current)
	case sessionstate.StrategyCodex:
		return classifyCodex(text, current)
	case sessionstate.StrategyGemini:
		return classifyGemini(text, current)
	case sessionstate.StrategyCursor:
		return classifyCursor(text, current)
	case sessionstate.StrategyGithubCopilot:
		return classifyGithubCopilot(text, current)
	case sessionstate.StrategyCline:
		return classifyCline(text, current)
	case sessionstate.StrategyPi:
		return classifyPi(text, current)
	default:
		return current
	}
}

func classifyClaude(text string, current sessionstate.State) sessionstate.State {
	if strings.Contains(text, claudeHistorySearch) {
		return current
	}
	if doYouWantYes.MatchString(text) {
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, claudeEscToCancel) {
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, claudeCtrlCInterrupt) || strings.Contains(text, claudeEscInterrupt) {
		return sessionstate.Busy
	}
	if strings.Contains(text, claudeEnterToSend) {
		return sessionstate.Idle
	}
	return sessionstate.Idle
}

func classifyCodex(text string, current sessionstate.State) sessionstate.State {
	switch {
	case strings.Contains(text, codexConfirmOrCancel),
		confirmWithEnter.MatchString(text),
		strings.Contains(text, codexAllowCommand),
		strings.Contains(text, codexYN),
		strings.Contains(text, codexYesY),
		doYouWantYes.MatchString(text):
		return sessionstate.WaitingInput
	}
	if escInterruptAny.MatchString(text) {
		return sessionstate.Busy
	}
	return sessionstate.Idle
}

func classifyGemini(text string, current sessionstate.State) sessionstate.State {
	switch {
	case strings.Contains(text, geminiWaitingConfirmation),
		strings.Contains(text, geminiApplyChange),
		strings.Contains(text, geminiAllowExecution),
		strings.Contains(text, geminiDoYouWantToProceed),
		doYouWantYes.MatchString(text):
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, geminiEscToCancel) {
		return sessionstate.Busy
	}
	return sessionstate.Idle
}

func classifyCursor(text string, current sessionstate.State) sessionstate.State {
	switch {
	case strings.Contains(text, cursorYEnter),
		strings.Contains(text, cursorKeepN),
		autoShiftTab.MatchString(text):
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, cursorCtrlCToStop) {
		return sessionstate.Busy
	}
	return sessionstate.Idle
}

func classifyGithubCopilot(text string, current sessionstate.State) sessionstate.State {
	switch {
	case confirmWithEnter.MatchString(text),
		strings.Contains(text, copilotDoYouWant):
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, copilotEscCancel) {
		return sessionstate.Busy
	}
	return sessionstate.Idle
}

func classifyCline(text string, current sessionstate.State) sessionstate.State {
	if bracketModeWithYesBelow(text) || strings.Contains(text, clineLetClineUse) {
		return sessionstate.WaitingInput
	}
	if strings.Contains(text, clineReadyBanner) {
		return sessionstate.Idle
	}
	return sessionstate.Busy
}

// bracketModeWithYesBelow reports whether a "[act mode]"/"[plan mode]"
// marker is followed somewhere below by a "yes" line.
func bracketModeWithYesBelow(text string) bool {
	idx := strings.Index(text, clineActMode)
	if idx == -1 {
		idx = strings.Index(text, clinePlanMode)
	}
	if idx == -1 {
		return false
	}
	return strings.Contains(text[idx:], clineYes)
}

func classifyPi(text string, current sessionstate.State) sessionstate.State {
	switch {
	case strings.Contains(text, piYN),
		pressEnterToConfirmOrContinue.MatchString(text),
		piSessionSelection.MatchString(text):
		return sessionstate.WaitingInput
	}
	if piInterruptOrCancel.MatchString(text) {
		return sessionstate.Busy
	}
	return sessionstate.Idle
}
