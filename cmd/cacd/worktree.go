package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/hooks"
)

// worktreeCmd exposes only the daemon's contract-level worktree surface
// (spec Non-goals: git worktree management internals belong to an
// external collaborator). `run-post-creation` lets an operator invoke
// the same postCreation hook the daemon fires, for testing the
// configured command and its {path}/{branch} substitution.
func worktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Inspect and exercise the worktree postCreation hook contract",
	}
	cmd.AddCommand(worktreeRunPostCreationCmd())
	return cmd
}

func worktreeRunPostCreationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-post-creation <path> <branch>",
		Short: "Run the configured postCreation hook for a worktree path/branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			cfg, err := config.Load(config.DocumentPath(dir))
			if err != nil {
				return fail(err)
			}
			warning := hooks.RunPostCreation(cfg.WorktreeHooks.PostCreation, args[0], args[1])
			return emit(map[string]string{"warning": warning}, func() {
				if warning != "" {
					fmt.Println("warning:", warning)
				} else {
					fmt.Println("ok")
				}
			})
		},
	}
}
