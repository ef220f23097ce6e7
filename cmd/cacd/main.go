// Command cacd is the CLI surface for the daemon supervisor (§4.9, §7):
// start/stop/status/restart the daemon, query/manage sessions, agents,
// and projects, and drive the access-token/passcode auth flow.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "cacd",
		Short:         "cacd — multi-agent coding session supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "emit one JSON object instead of human-readable output")

	root.AddCommand(
		startCmd(),
		stopCmd(),
		restartCmd(),
		statusCmd(),
		sessionsCmd(),
		sessionCmd(),
		agentsCmd(),
		addCmd(),
		removeCmd(),
		listCmd(),
		authCmd(),
		worktreeCmd(),
		uiCmd(),
		setupCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
