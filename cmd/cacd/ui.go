package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
)

// uiCmd is the quick remote-control surface over the streaming gateway
// (§7 `ui {focus|send|approve|notify}`): thin one-shot wrappers around
// the same subscribe/input vocabulary a browser/terminal UI would use.
func uiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "One-shot remote-control actions against a session",
	}
	cmd.AddCommand(uiFocusCmd(), uiSendCmd(), uiApproveCmd(), uiNotifyCmd())
	return cmd
}

func uiFocusCmd() *cobra.Command {
	return sessionSetActiveCmd()
}

func uiSendCmd() *cobra.Command {
	var projectPath, text string
	cmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Send keystrokes to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sendInput(projectPath, args[0], text); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"sent": true}, func() { fmt.Println("sent") })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	cmd.Flags().StringVar(&text, "text", "", "text to send (raw bytes, no implicit newline)")
	return cmd
}

func uiApproveCmd() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Manually send the auto-approval newline to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sendInput(projectPath, args[0], "\n"); err != nil {
				return fail(err)
			}
			return emit(map[string]bool{"approved": true}, func() { fmt.Println("approved") })
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	return cmd
}

func uiNotifyCmd() *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "notify <id>",
		Short: "Print a session's current state, suitable for piping into a notifier",
		Args:  cobra.ExactArgs(1),
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
			for _, p := range state.Projects {
				if projectPath != "" && p.ProjectPath != projectPath {
					continue
				}
				for _, s := range p.Sessions {
					if s.ID == args[0] {
						return emit(s, func() { fmt.Printf("%s: %s\n", s.ID, s.State) })
					}
				}
			}
			return fail(fmt.Errorf("unknown session %s", args[0]))
		},
	}
	cmd.Flags().StringVar(&projectPath, "project", "", "project root path owning the session")
	return cmd
}

// sendInput opens a short-lived streaming connection, pushes a single
// input message for one session (no subscribe), and disconnects. It exists so
// shell scripts can drive a session without holding a connection open.
func sendInput(projectPath, sessionID, text string) error {
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(config.DocumentPath(dir))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	port := config.ResolvePort(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(authgate.HeaderName, cfg.AccessToken)
	url := fmt.Sprintf("ws://127.0.0.1:%d/api/stream", port)
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return errDaemonUnreachable
	}
	defer conn.CloseNow()

	msg := map[string]any{
		"type":        "input",
		"projectPath": projectPath,
		"sessionId":   sessionID,
		"data":        base64.StdEncoding.EncodeToString([]byte(text)),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
