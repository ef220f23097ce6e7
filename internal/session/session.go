package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/sessionstate"
	"github.com/cacd-dev/cacd/internal/verifier"
	"github.com/cacd-dev/cacd/internal/vterm"
)

// startupGrace is how long a session is given to produce its first PTY
// output before the watchdog logs a diagnostic dump.
const startupGrace = 15 * time.Second

// Config describes how to spawn one C4 PTY session. The agent-specific
// command line (baseArgs + derivedArgs) is assembled upstream by the
// agents package's option-assembly rules (§6); Session only spawns it.
type Config struct {
	ID           string
	ProjectPath  string
	WorktreePath string
	AgentID      string
	Strategy     sessionstate.Strategy

	Command string
	Args    []string
	Env     []string
	Cols    int
	Rows    int

	AutoApprovalEnabled bool
	AutoApprovalNewline bool
	VerifierCommand     string
	VerifierTimeout     time.Duration

	Debug bool

	OnTransition func(eventbus.Transition)
	OnExit       func(exitCode int)
	Log          *slog.Logger
}

// Session owns one child process (C4): the PTY handle, the terminal
// buffer (C1), the classifier loop (C3), the output ring, and subscriber
// fan-out.
type Session struct {
	ID           string
	ProjectPath  string
	WorktreePath string
	AgentID      string

	cmd  *exec.Cmd
	ptmx *os.File
	vt   *vterm.Buffer
	ring *Ring
	sm   *StateMachine
	log  *slog.Logger

	subMu       sync.Mutex
	subscribers map[int]chan []byte
	nextSubID   int

	ioMu       sync.Mutex
	lastInput  time.Time
	lastOutput time.Time
	startedAt  time.Time

	firstOutputOnce sync.Once
	firstOutputCh   chan struct{}

	doneCh   chan struct{}
	exitOnce sync.Once
	exitCode int

	debugFile *os.File
	onExit    func(int)
}

// New spawns the child process under a PTY and starts its producer loop,
// classifier tick, and (if no grace-window output arrives) watchdog.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Cols <= 0 {
		cfg.Cols = vterm.DefaultCols
	}
	if cfg.Rows <= 0 {
		cfg.Rows = vterm.DefaultRows
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorktreePath
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, cfg.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)})
	if err != nil {
		return nil, fmt.Errorf("spawn pty for session %s: %w", cfg.ID, err)
	}

	sess := &Session{
		ID:            cfg.ID,
		ProjectPath:   cfg.ProjectPath,
		WorktreePath:  cfg.WorktreePath,
		AgentID:       cfg.AgentID,
		cmd:           cmd,
		ptmx:          ptmx,
		vt:            vterm.New(cfg.Cols, cfg.Rows),
		ring:          NewRing(RingCapacity),
		log:           log,
		subscribers:   make(map[int]chan []byte),
		startedAt:     time.Now(),
		firstOutputCh: make(chan struct{}),
		doneCh:        make(chan struct{}),
		onExit:        cfg.OnExit,
	}

	if cfg.Debug {
		path := fmt.Sprintf("/tmp/cacd-pty-%s-%s.bin", cfg.AgentID, cfg.ID)
		if f, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644); ferr == nil {
			sess.debugFile = f
		} else {
			log.Warn("debug pty recording unavailable", "path", path, "error", ferr)
		}
	}

	sess.sm = NewStateMachine(StateMachineConfig{
		Strategy:            cfg.Strategy,
		AutoApprovalEnabled: cfg.AutoApprovalEnabled,
		AutoApprovalNewline: cfg.AutoApprovalNewline,
		LinesTail:           func(n int) []string { return sess.vt.LinesTail(n) },
		WriteNewline:        func() { _, _ = sess.ptmx.Write([]byte("\n")) },
		RunVerifier: func(ctx context.Context) verifier.Outcome {
			v := &verifier.Verifier{Command: cfg.VerifierCommand, Timeout: cfg.VerifierTimeout}
			return v.Run(ctx)
		},
		OnTransition: cfg.OnTransition,
		Log:          log,
	})
	sess.sm.Start()

	go sess.readLoop()
	go sess.waitExit()
	go sess.startupWatchdog()

	return sess, nil
}

// Write forwards bytes to the PTY's stdin. Best-effort: if the child has
// died the write is dropped. A child's exit only closes Done(); the
// session is not destroyed and stays registered until Destroy is called.
func (s *Session) Write(p []byte) {
	s.ioMu.Lock()
	s.lastInput = time.Now()
	s.ioMu.Unlock()
	_, _ = s.ptmx.Write(p)
}

// Resize resizes the PTY and the virtual terminal buffer. Per the open
// question on concurrent resizes, this is intentionally last-writer-wins
// with no ordering guarantee across callers.
func (s *Session) Resize(cols, rows int) error {
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("resize session %s: %w", s.ID, err)
	}
	s.vt.Resize(cols, rows)
	return nil
}

// Subscribe registers a new subscriber, replaying the ring buffer before
// any subsequently-produced live byte (ordering contract, §4.4).
func (s *Session) Subscribe() (int, <-chan []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan []byte, 256)
	if replay := s.ring.Snapshot(); len(replay) > 0 {
		ch <- replay
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe releases a subscriber handle.
func (s *Session) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

// CancelAutoApproval aborts the outstanding verifier, if any.
func (s *Session) CancelAutoApproval(reason string) {
	s.sm.CancelAutoApproval(reason)
}

// Snapshot returns the full observable-state snapshot for external
// consumers (the HTTP/stream gateway).
type Snapshot struct {
	ID                 string
	ProjectPath        string
	WorktreePath       string
	AgentID            string
	State              sessionstate.State
	AutoApprovalFailed bool
	AutoApprovalReason string
	StartedAt          time.Time
}

func (s *Session) Snapshot() Snapshot {
	sm := s.sm.Snapshot()
	return Snapshot{
		ID:                 s.ID,
		ProjectPath:        s.ProjectPath,
		WorktreePath:       s.WorktreePath,
		AgentID:            s.AgentID,
		State:              sm.State,
		AutoApprovalFailed: sm.AutoApprovalFailed,
		AutoApprovalReason: sm.AutoApprovalReason,
		StartedAt:          s.startedAt,
	}
}

// Done returns a channel closed once the child process has exited.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Destroy tears the session down: classifier timer, verifier, PTY,
// subscribers (I1, I2, I3 released together).
func (s *Session) Destroy() {
	s.sm.Stop()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		time.Sleep(200 * time.Millisecond)
		if err := s.cmd.Process.Signal(syscall.Signal(0)); err == nil {
			_ = s.cmd.Process.Kill()
		}
	}
	_ = s.ptmx.Close()
	_ = s.vt.Close()

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subMu.Unlock()

	if s.debugFile != nil {
		_ = s.debugFile.Close()
	}
}

func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.onBytes(data)
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) onBytes(data []byte) {
	s.ioMu.Lock()
	s.lastOutput = time.Now()
	s.ioMu.Unlock()

	s.firstOutputOnce.Do(func() { close(s.firstOutputCh) })

	if s.debugFile != nil {
		_, _ = s.debugFile.Write(data)
	}

	s.subMu.Lock()
	s.ring.Write(data)
	for id, ch := range s.subscribers {
		select {
		case ch <- data:
		default:
			delete(s.subscribers, id)
			close(ch)
		}
	}
	s.subMu.Unlock()

	s.vt.Feed(data)
}

func (s *Session) waitExit() {
	err := s.cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}
	s.exitOnce.Do(func() {
		s.exitCode = exitCode
		close(s.doneCh)
	})
	s.log.Info("session exited", "session", s.ID, "exit_code", exitCode)
	if s.onExit != nil {
		s.onExit(exitCode)
	}
}

func (s *Session) startupWatchdog() {
	select {
	case <-s.firstOutputCh:
	case <-s.doneCh:
	case <-time.After(startupGrace):
		s.log.Warn("no PTY output within startup grace window",
			"session", s.ID, "agent", s.AgentID, "worktree", s.WorktreePath)
	}
}
