package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/config"
)

// sessionSummary mirrors the gateway's JSON session envelope (§6
// `GET /api/state`). Kept as a local, decode-only mirror rather than an
// import since the gateway's own type is unexported.
type sessionSummary struct {
	ID                 string `json:"id"`
	ProjectPath        string `json:"projectPath"`
	WorktreePath       string `json:"worktreePath"`
	AgentID            string `json:"agentId"`
	State              string `json:"state"`
	AutoApprovalFailed bool   `json:"autoApprovalFailed"`
	AutoApprovalReason string `json:"autoApprovalReason,omitempty"`
}

type projectState struct {
	ProjectPath string           `json:"projectPath"`
	ActiveID    string           `json:"activeSessionId,omitempty"`
	Sessions    []sessionSummary `json:"sessions"`
}

type stateResponse struct {
	Projects []projectState `json:"projects"`
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List every project's sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return fail(err)
			}
			resp, err := c.do(http.MethodGet, "/api/state", nil)
			if err != nil {
				return fail(err)
			}
			var state stateResponse
			if err := decode(resp, &state); err != nil {
				return fail(err)
			}
			return emit(state, func() {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PROJECT\tSESSION\tAGENT\tSTATE\tACTIVE")
				for _, p := range state.Projects {
					for _, s := range p.Sessions {
						active := ""
						if s.ID == p.ActiveID {
							active = "*"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ProjectPath, s.ID, s.AgentID, s.State, active)
					}
				}
				w.Flush()
			})
		},
	}
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage individual sessions",
	}
	cmd.AddCommand(sessionCreateCmd(), sessionDestroyCmd(), sessionResizeCmd(), sessionSetActiveCmd())
	return cmd
}

func sessionCreateCmd() *cobra.Command {
	var projectPath, worktreePath, agentID, command string
	var args []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, a []string) error {
			c, err := newAPIClient()
			if err != nil {
				return fail(err)
			}
			body := map[string]any{
				"projectPath":  projectPath,
				"worktreePath": worktreePath,
				"agentId":      agentID,
				"command":      command,
				"args":         args,
			}
			resp, err := c.do(http.MethodPost, "/api/session", body)
			if err != nil {
				return fail(err)
			}
			var created sessionSummary
			if err := decode(resp, &created); err != nil {
				return fail(err)
			}
			return emit(created, func() { fmt.Println(created.ID) })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path")
	cmd.Flags().StringVar(&worktreePath, "worktree", "", "worktree path to spawn the agent in")
	cmd.Flags().StringVar(&agentID, "agent", "", "configured agent id")
	cmd.Flags().StringVar(&command, "command", "", "override command (defaults to the agent's configured command)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "additional argument (repeatable)")
	return cmd
}

func sessionDestroyCmd() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "destroy <id>",
		Short: "Destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, a []string) error {
			c, err := newAPIClient()
			if err != nil {
				return fail(err)
			}
			resp, err := c.do(http.MethodDelete, "/api/session/"+a[0]+"?projectPath="+projectPath, nil)
			if err != nil {
				return fail(err)
			}
			if err := decode(resp, nil); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"destroyed": true}, func() { fmt.Println("destroyed", a[0]) })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	return cmd
}

func sessionResizeCmd() *cobra.Command {
	var projectPath string
	var cols, rows int
	cmd := &cobra.Command{
		Use:   "resize <id>",
		Short: "Resize a session's terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, a []string) error {
			c, err := newAPIClient()
			if err != nil {
				return fail(err)
			}
			body := map[string]any{"projectPath": projectPath, "cols": cols, "rows": rows}
			resp, err := c.do(http.MethodPost, "/api/session/"+a[0]+"/resize", body)
			if err != nil {
				return fail(err)
			}
			if err := decode(resp, nil); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"resized": true}, func() { fmt.Println("resized", a[0]) })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	cmd.Flags().IntVar(&cols, "cols", 80, "terminal columns")
	cmd.Flags().IntVar(&rows, "rows", 24, "terminal rows")
	return cmd
}

func sessionSetActiveCmd() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "focus <id>",
		Short: "Mark a session as the active one for its project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, a []string) error {
			c, err := newAPIClient()
			if err != nil {
				return fail(err)
			}
			body := map[string]any{"projectPath": projectPath, "sessionId": a[0]}
			resp, err := c.do(http.MethodPost, "/api/session/set-active", body)
			if err != nil {
				return fail(err)
			}
			if err := decode(resp, nil); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"active": true}, func() { fmt.Println("active session set to", a[0]) })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	return cmd
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.Dir()
			if err != nil {
				return fail(err)
			}
			cfg, err := config.Load(config.DocumentPath(dir))
			if err != nil {
				return fail(err)
			}
			return emit(cfg.Agents, func() {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tKIND\tCOMMAND")
				for _, a := range cfg.Agents {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Kind, a.Command)
				}
				w.Flush()
			})
		},
	}
}
