package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the daemon's access token and passcode",
	}
	cmd.AddCommand(authShowCmd(), authResetPasscodeCmd(), authRegenerateTokenCmd())
	return cmd
}

func authShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print a bearer token derived from the configured access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			cfg, err := config.Load(config.DocumentPath(dir))
			if err != nil {
				return fail(err)
			}
			if cfg.AccessToken == "" {
				return fail(fmt.Errorf("no access token configured; run `cacd setup` first"))
			}
			gate := authgate.New(cfg.AccessToken)
			tok, err := gate.IssueToken(0)
			if err != nil {
				return fail(err)
			}
			return emit(map[string]string{"token": tok}, func() { fmt.Println(tok) })
		},
	}
}

func authResetPasscodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-passcode",
		Short: "Set a new passcode for the web/remote UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadMutableConfig()
			if err != nil {
				return fail(err)
			}
			passcode, err := readPasscode()
			if err != nil {
				return fail(err)
			}
			hash, err := authgate.HashPasscode(passcode)
			if err != nil {
				return fail(err)
			}
			cfg.PasscodeHash = hash
			if err := config.Save(path, cfg); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"reset": true}, func() { fmt.Println("passcode updated") })
		},
	}
}

func authRegenerateTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate-token",
		Short: "Generate a new access token, invalidating the previous one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadMutableConfig()
			if err != nil {
				return fail(err)
			}
			tok, err := authgate.GenerateToken()
			if err != nil {
				return fail(err)
			}
			cfg.RevokeToken(cfg.AccessToken)
			cfg.AccessToken = tok
			if err := config.Save(path, cfg); err != nil {
				return fail(err)
			}
			return emit(map[string]string{"accessToken": tok}, func() {
				fmt.Println("new access token:", tok)
				fmt.Println("restart the daemon for it to take effect")
			})
		},
	}
}

// readPasscode reads a passcode from the controlling terminal without
// echoing it, falling back to a plain scan when stdin isn't a terminal
// (e.g. scripted/--json invocations piping a value in).
func readPasscode() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		var passcode string
		if _, err := fmt.Scanln(&passcode); err != nil {
			return "", fmt.Errorf("read passcode: %w", err)
		}
		return passcode, nil
	}
	fmt.Fprint(os.Stderr, "new passcode: ")
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passcode: %w", err)
	}
	return string(data), nil
}
