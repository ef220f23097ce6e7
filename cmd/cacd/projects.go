package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/config"
)

// loadMutableConfig loads the persisted document for an in-place edit,
// returning both the config and the path it must be saved back to.
func loadMutableConfig() (*config.Config, string, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, "", fmt.Errorf("resolve config dir: %w", err)
	}
	if err := config.EnsureDir(dir); err != nil {
		return nil, "", err
	}
	path := config.DocumentPath(dir)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Register a project root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadMutableConfig()
			if err != nil {
				return fail(err)
			}
			cfg.AddProject(args[0])
			if err := config.Save(path, cfg); err != nil {
				return fail(err)
			}
			return emit(map[string]string{"added": args[0]}, func() { fmt.Println("added", args[0]) })
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Unregister a project root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadMutableConfig()
			if err != nil {
				return fail(err)
			}
			existed := cfg.RemoveProject(args[0])
			if !existed {
				return fail(fmt.Errorf("unknown project %s", args[0]))
			}
			if err := config.Save(path, cfg); err != nil {
				return fail(err)
			}
			return emit(map[string]string{"removed": args[0]}, func() { fmt.Println("removed", args[0]) })
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered project roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			cfg, err := config.Load(config.DocumentPath(dir))
			if err != nil {
				return fail(err)
			}
			return emit(cfg.Projects, func() {
				for _, p := range cfg.Projects {
					fmt.Println(p)
				}
			})
		},
	}
}
