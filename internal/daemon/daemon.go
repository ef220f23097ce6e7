// Package daemon implements C9: the daemon supervisor. It owns the PID
// file lifecycle (refuse-to-start on a live owner, write-on-start,
// remove-on-clean-stop), wires the orchestrator/gateway/hooks into one
// HTTP server, and in dev mode hot-reloads the configuration document on
// change.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/gateway"
	"github.com/cacd-dev/cacd/internal/hooks"
	"github.com/cacd-dev/cacd/internal/orchestrator"
	"github.com/cacd-dev/cacd/internal/tddb"
)

// ErrPIDFileLive is returned by Run when the PID file names a process
// that is still alive (spec §4.9 "refuses to start").
var ErrPIDFileLive = errors.New("daemon already running")

// Daemon wires together one running instance of every C1-C10 component
// for the lifetime of the process.
type Daemon struct {
	Dir    string
	Config *config.Config
	Orch   *orchestrator.Orchestrator
	Gate   *authgate.Gate
	Hooks  *hooks.Dispatcher
	TD     *tddb.DB
	Log    *slog.Logger

	gw  *gateway.Gateway
	srv *http.Server
}

// New constructs a Daemon from a loaded config document and its backing
// directory. It does not start listening or write the PID file; call Run.
func New(dir string, cfg *config.Config, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	bus := eventbus.New()
	orch := orchestrator.New(bus, log)
	gate := authgate.New(cfg.AccessToken, cfg.RevokedTokens...)
	hk := hooks.New(cfg.StatusHooks, log)

	var td *tddb.DB
	if path := os.Getenv("CACD_TD_DB_PATH"); path != "" {
		if opened, err := tddb.Open(path); err == nil {
			td = opened
		} else {
			log.Warn("td database unavailable", "path", path, "error", err)
		}
	}

	d := &Daemon{Dir: dir, Config: cfg, Orch: orch, Gate: gate, Hooks: hk, TD: td, Log: log}
	d.gw = gateway.New(orch, gate, cfg, hk, td, log)
	return d
}

// Run performs the full supervised lifecycle: PID-file acquisition,
// HTTP listen, signal-driven graceful stop, PID-file release. It blocks
// until a stop signal (or ctx cancellation) and returns once shutdown is
// complete.
func Run(ctx context.Context, dir string, cfg *config.Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if err := config.EnsureDir(dir); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	pidPath := config.PIDPath(dir)
	if err := acquirePIDFile(pidPath); err != nil {
		return err
	}
	defer removePIDFile(pidPath)

	d := New(dir, cfg, log)
	defer d.Orch.Close()
	if d.TD != nil {
		defer d.TD.Close()
	}

	port := config.ResolvePort(cfg)
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	d.srv = &http.Server{Handler: d.gw.Handler()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	if config.IsDev() {
		go d.watchConfig(runCtx, config.DocumentPath(dir))
	}
	go d.runHookBridge(runCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("daemon listening", "addr", ln.Addr().String(), "dir", dir)
		errCh <- d.srv.Serve(ln)
	}()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case <-runCtx.Done():
		log.Info("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := d.srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown did not complete cleanly", "error", err)
	}
	return nil
}

// watchConfig reloads status hooks when the config document changes on
// disk, the dev-mode "hot reload" named in spec §4.9/§7. It does not
// tear down and recreate the orchestrator (that would drop live
// sessions); it only re-reads config-derived behaviour that is safe to
// swap in place.
func (d *Daemon) watchConfig(ctx context.Context, path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.Log.Warn("config watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		d.Log.Warn("watch config file", "path", path, "error", err)
		return
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				d.Log.Warn("reload config", "error", err)
				continue
			}
			d.Config = cfg
			d.Hooks = hooks.New(cfg.StatusHooks, d.Log)
			d.gw.Config = cfg
			d.gw.Hooks = d.Hooks
			d.Log.Info("config reloaded", "path", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.Log.Warn("config watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// runHookBridge subscribes to the shared event bus and fires C7 status
// hooks on every confirmed state transition (§4.7), across every
// project's sessions. It reads d.Hooks on each event rather than
// capturing it once so a dev-mode config reload's new hook commands take
// effect without restarting the bridge.
func (d *Daemon) runHookBridge(ctx context.Context) {
	id, ch := d.Orch.Bus().Subscribe()
	defer d.Orch.Bus().Unsubscribe(id)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == eventbus.KindStateTransition && ev.Transition != nil {
				d.Hooks.OnTransition(ev.SessionID, ev.Transition.To)
			}
		case <-ctx.Done():
			return
		}
	}
}

// acquirePIDFile refuses to start if pidPath names a live process
// (spec §4.9), replacing a stale file whose owner is dead, and writes
// the current process's PID.
func acquirePIDFile(pidPath string) error {
	if pid, err := readPIDFile(pidPath); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("%w: pid %d owns %s", ErrPIDFileLive, pid, pidPath)
		}
	}
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// removePIDFile removes the PID file only if it still names this
// process, so an already-superseded file from a later instance is never
// clobbered.
func removePIDFile(pidPath string) {
	pid, err := readPIDFile(pidPath)
	if err != nil || pid != os.Getpid() {
		return
	}
	_ = os.Remove(pidPath)
}

func readPIDFile(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", pidPath, err)
	}
	return pid, nil
}

// processAlive reports whether pid names a live process, via the
// kill(pid, 0) liveness check (no signal delivered, only existence and
// permission checked).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Status describes the daemon's reachability for the CLI `status`
// subcommand.
type Status struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// ReadStatus inspects the PID file without starting or stopping
// anything.
func ReadStatus(dir string) Status {
	pid, err := readPIDFile(config.PIDPath(dir))
	if err != nil || !processAlive(pid) {
		return Status{Running: false}
	}
	return Status{Running: true, PID: pid}
}

// Stop sends SIGTERM to the running daemon named by the PID file and
// waits (briefly, polling) for the PID file to be removed, signalling a
// clean stop.
func Stop(dir string, wait time.Duration) error {
	pidPath := config.PIDPath(dir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	if !processAlive(pid) {
		_ = os.Remove(pidPath)
		return fmt.Errorf("daemon not running: stale pid file removed")
	}
	if err := unix.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", wait)
}
