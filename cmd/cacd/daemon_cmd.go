package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/daemon"
	"github.com/cacd-dev/cacd/internal/logger"
)

// internalForegroundEnv marks a re-exec'd child that should actually run
// the daemon loop in this process, as opposed to the user-facing `start`
// that forks and detaches it.
const internalForegroundEnv = "CACD_INTERNAL_FOREGROUND"

func startCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the cacd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			if foreground || os.Getenv(internalForegroundEnv) == "1" {
				return fail(runForeground(dir))
			}
			return fail(startDetached(dir))
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of forking a background process")
	return cmd
}

func runForeground(dir string) error {
	log, err := logger.New("info", config.LogPath(dir))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg, err := config.Load(config.DocumentPath(dir))
	if err != nil {
		return err
	}
	return daemon.Run(context.Background(), dir, cfg, log)
}

func startDetached(dir string) error {
	if st := daemon.ReadStatus(dir); st.Running {
		return emit(st, func() { fmt.Printf("already running (pid %d)\n", st.PID) })
	}
	if err := config.EnsureDir(dir); err != nil {
		return err
	}
	logFile, err := os.OpenFile(config.LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(os.Args[0], "start", "--foreground")
	child.Env = append(os.Environ(), internalForegroundEnv+"=1")
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("fork daemon process: %w", err)
	}
	_ = child.Process.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := daemon.ReadStatus(dir); st.Running {
			return emit(st, func() { fmt.Printf("started (pid %d)\n", st.PID) })
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not report ready within 5s, check %s", config.LogPath(dir))
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the cacd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			if err := daemon.Stop(dir, 10*time.Second); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"stopped": true}, func() { fmt.Println("stopped") })
		},
	}
}

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the cacd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			if daemon.ReadStatus(dir).Running {
				if err := daemon.Stop(dir, 10*time.Second); err != nil {
					return fail(err)
				}
			}
			return fail(startDetached(dir))
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the cacd daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			st := daemon.ReadStatus(dir)
			return emit(st, func() {
				if st.Running {
					fmt.Printf("running (pid %d)\n", st.PID)
				} else {
					fmt.Println("not running")
				}
			})
		},
	}
}
