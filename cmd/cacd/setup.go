package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
)

// setupCmd performs first-run initialization: ensure the config
// directory exists, write a default document if one isn't present yet,
// and mint an access token if none is configured.
func setupCmd() *cobra.Command {
	var withPasscode bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Initialize the cacd config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			if err := config.EnsureDir(dir); err != nil {
				return fail(err)
			}
			path := config.DocumentPath(dir)
			cfg, err := config.Load(path)
			if err != nil {
				return fail(err)
			}

			changed := false
			if cfg.AccessToken == "" {
				tok, err := authgate.GenerateToken()
				if err != nil {
					return fail(err)
				}
				cfg.AccessToken = tok
				changed = true
			}
			if withPasscode && cfg.PasscodeHash == "" {
				passcode, err := readPasscode()
				if err != nil {
					return fail(err)
				}
				hash, err := authgate.HashPasscode(passcode)
				if err != nil {
					return fail(err)
				}
				cfg.PasscodeHash = hash
				changed = true
			}
			if changed {
				if err := config.Save(path, cfg); err != nil {
					return fail(err)
				}
			}

			return emit(map[string]any{"dir": dir, "configPath": path, "accessToken": cfg.AccessToken}, func() {
				fmt.Println("config directory:", dir)
				fmt.Println("access token:", cfg.AccessToken)
				fmt.Println("start the daemon with: cacd start")
			})
		},
	}
	cmd.Flags().BoolVar(&withPasscode, "with-passcode", false, "also prompt for a passcode")
	return cmd
}
