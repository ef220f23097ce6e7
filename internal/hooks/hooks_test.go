package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/sessionstate"
)

func TestSubstituteLeavesUnknownPlaceholdersIntact(t *testing.T) {
	got := Substitute("echo {path} {branch} {unknown}", "/tmp/wt", "feature/x")
	want := "echo /tmp/wt feature/x {unknown}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRunPostCreationNonFatalOnFailure(t *testing.T) {
	warning := RunPostCreation("exit 1", "/tmp/wt", "main")
	if warning == "" {
		t.Fatal("expected a warning string on hook failure")
	}
}

func TestRunPostCreationEmptyCommandDisabled(t *testing.T) {
	if w := RunPostCreation("", "/tmp/wt", "main"); w != "" {
		t.Fatalf("expected no warning for an empty (disabled) hook, got %q", w)
	}
}

func TestOnTransitionRunsConfiguredCommandAsynchronously(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	d := New(config.StatusHooks{OnIdle: "touch " + marker}, nil)
	d.OnTransition("sess-1", sessionstate.Idle)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected onIdle hook to create marker file")
}

func TestOnTransitionDisabledHookIsNoop(t *testing.T) {
	d := New(config.StatusHooks{}, nil)
	d.OnTransition("sess-1", sessionstate.Busy) // must not panic or block
}
