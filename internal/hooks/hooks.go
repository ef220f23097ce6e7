// Package hooks implements C7: status hooks fired on confirmed state
// transitions and the worktree postCreation hook, both running the
// user's shell with placeholder substitution.
package hooks

import (
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/sessionstate"
)

// Dispatcher runs configured shell hooks. Status hooks are fire-and-forget
// (output discarded, only logged) and are never serialized across states
// or across sessions — a new invocation is allowed in parallel with one
// still running (§4.7).
type Dispatcher struct {
	cfg config.StatusHooks
	log *slog.Logger
}

// New creates a Dispatcher for the given status hook configuration.
func New(cfg config.StatusHooks, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cfg: cfg, log: log}
}

// OnTransition fires the status hook configured for t.To, if any. It must
// not block the caller (the session's state machine tick): the command
// is spawned in its own goroutine.
func (d *Dispatcher) OnTransition(sessionID string, t sessionstate.State) {
	cmd := d.commandFor(t)
	if cmd == "" {
		return
	}
	go d.run(sessionID, string(t), cmd)
}

func (d *Dispatcher) commandFor(state sessionstate.State) string {
	switch state {
	case sessionstate.Idle:
		return d.cfg.OnIdle
	case sessionstate.Busy:
		return d.cfg.OnBusy
	case sessionstate.WaitingInput:
		return d.cfg.OnWaitingInput
	case sessionstate.PendingAutoApproval:
		return d.cfg.OnPendingAutoApproval
	default:
		return ""
	}
}

func (d *Dispatcher) run(sessionID, state, command string) {
	out, err := exec.Command("sh", "-c", command).CombinedOutput()
	if err != nil {
		d.log.Warn("status hook failed", "session", sessionID, "state", state, "error", err, "output", string(out))
		return
	}
	d.log.Debug("status hook ran", "session", sessionID, "state", state, "output", string(out))
}

// Substitute replaces {path} and {branch} placeholders in command. Any
// other placeholder-looking substring is left intact (§8 testable
// property 10).
func Substitute(command, path, branch string) string {
	r := strings.NewReplacer("{path}", path, "{branch}", branch)
	return r.Replace(command)
}

// RunPostCreation runs the worktreeHooks.postCreation command, if
// configured. Failure is non-fatal: the caller is expected to attach the
// returned warning to the worktree's warnings list rather than fail the
// worktree-creation operation (§4.7, §7).
func RunPostCreation(command, path, branch string) (warning string) {
	if command == "" {
		return ""
	}
	expanded := Substitute(command, path, branch)
	out, err := exec.Command("sh", "-c", expanded).CombinedOutput()
	if err != nil {
		return "postCreation hook failed: " + err.Error() + ": " + strings.TrimSpace(string(out))
	}
	return ""
}
