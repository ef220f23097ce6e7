package verifier

import (
	"context"
	"testing"
	"time"
)

func TestRun_Pass(t *testing.T) {
	v := &Verifier{Command: `echo '{"needsPermission": false}'`, Timeout: time.Second}
	out := v.Run(context.Background())
	if out.Kind != KindPass {
		t.Fatalf("expected pass, got %s (%s)", out.Kind, out.Reason)
	}
}

func TestRun_Deny(t *testing.T) {
	v := &Verifier{Command: `echo '{"needsPermission": true, "reason": "looks destructive"}'`, Timeout: time.Second}
	out := v.Run(context.Background())
	if out.Kind != KindDeny || !out.NeedsPermission || out.Reason != "looks destructive" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRun_Timeout(t *testing.T) {
	v := &Verifier{Command: "sleep 5", Timeout: 50 * time.Millisecond}
	start := time.Now()
	out := v.Run(context.Background())
	elapsed := time.Since(start)
	if out.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %s", out.Kind)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timeout took too long to settle: %s", elapsed)
	}
}

func TestRun_ParseError(t *testing.T) {
	v := &Verifier{Command: `echo 'not json'`, Timeout: time.Second}
	out := v.Run(context.Background())
	if out.Kind != KindParseError {
		t.Fatalf("expected parse_error, got %s", out.Kind)
	}
}

func TestRun_ProcessError(t *testing.T) {
	v := &Verifier{Command: "exit 7", Timeout: time.Second}
	out := v.Run(context.Background())
	if out.Kind != KindProcessError {
		t.Fatalf("expected process_error, got %s", out.Kind)
	}
}

func TestRun_CancelSettlesPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := &Verifier{Command: "sleep 30", Timeout: time.Minute}
	doneCh := make(chan Outcome, 1)
	go func() { doneCh <- v.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case out := <-doneCh:
		if out.Kind != KindTimeout {
			t.Fatalf("expected timeout outcome on cancel, got %s", out.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("cancellation did not settle promptly")
	}
}
