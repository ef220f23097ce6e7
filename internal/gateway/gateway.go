// Package gateway implements C10, the remote gateway: REST endpoints to
// list/create/destroy sessions, set the active session, resize, and the
// read-only TD proxy, plus one streaming full-duplex connection per
// client carrying the terminal_data/session_update/input/resize event
// vocabulary of §4.10. Framing is WebSocket; the wire contract itself is
// what §4.10/§6 specify, not the framing choice.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cacd-dev/cacd/internal/agents"
	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/hooks"
	"github.com/cacd-dev/cacd/internal/orchestrator"
	"github.com/cacd-dev/cacd/internal/session"
	"github.com/cacd-dev/cacd/internal/sessionstate"
	"github.com/cacd-dev/cacd/internal/tddb"
)

// Gateway serves the daemon's HTTP/streaming surface over a shared
// Orchestrator. It holds no session state of its own.
type Gateway struct {
	Orch   *orchestrator.Orchestrator
	Gate   *authgate.Gate
	Config *config.Config
	Hooks  *hooks.Dispatcher
	TD     *tddb.DB // nil disables /api/td/*
	Log    *slog.Logger
}

// New wires a Gateway's dependencies together (§9 design note: passed in
// explicitly, never resolved from a hidden global).
func New(orch *orchestrator.Orchestrator, gate *authgate.Gate, cfg *config.Config, hk *hooks.Dispatcher, td *tddb.DB, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{Orch: orch, Gate: gate, Config: cfg, Hooks: hk, TD: td, Log: log}
}

// Handler builds the routed, auth-gated http.Handler for the daemon's
// REST/streaming surface.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", g.handleState)
	mux.HandleFunc("POST /api/session", g.handleCreateSession)
	mux.HandleFunc("POST /api/session/set-active", g.handleSetActive)
	mux.HandleFunc("DELETE /api/session/{id}", g.handleDestroySession)
	mux.HandleFunc("POST /api/session/{id}/resize", g.handleResize)
	mux.HandleFunc("GET /api/stream", g.handleStream)
	mux.HandleFunc("GET /api/td/", g.handleTDProxy)

	return g.Gate.Middleware(mux)
}

// --- REST handlers -------------------------------------------------

type sessionSummary struct {
	ID                 string `json:"id"`
	ProjectPath        string `json:"projectPath"`
	WorktreePath       string `json:"worktreePath"`
	AgentID            string `json:"agentId"`
	State              string `json:"state"`
	AutoApprovalFailed bool   `json:"autoApprovalFailed"`
	AutoApprovalReason string `json:"autoApprovalReason,omitempty"`
}

func summarize(s session.Snapshot) sessionSummary {
	return sessionSummary{
		ID:                 s.ID,
		ProjectPath:        s.ProjectPath,
		WorktreePath:       s.WorktreePath,
		AgentID:            s.AgentID,
		State:              string(s.State),
		AutoApprovalFailed: s.AutoApprovalFailed,
		AutoApprovalReason: s.AutoApprovalReason,
	}
}

type stateResponse struct {
	Projects []projectState `json:"projects"`
}

type projectState struct {
	ProjectPath string           `json:"projectPath"`
	ActiveID    string           `json:"activeSessionId,omitempty"`
	Sessions    []sessionSummary `json:"sessions"`
}

// handleState answers readiness + a summary of every project/session
// (§6 `GET /api/state`).
func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{}
	for _, p := range g.Orch.Projects() {
		m := g.Orch.ManagerFor(p)
		ps := projectState{ProjectPath: p, ActiveID: m.ActiveID()}
		for _, s := range m.List() {
			ps.Sessions = append(ps.Sessions, summarize(s.Snapshot()))
		}
		resp.Projects = append(resp.Projects, ps)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createSessionRequest struct {
	ProjectPath  string              `json:"projectPath"`
	WorktreePath string              `json:"worktreePath"`
	AgentID      string              `json:"agentId"`
	Command      string              `json:"command"`
	Args         []string            `json:"args"`
	Options      agents.OptionValues `json:"options"`
	Strategy     string              `json:"strategy"`
}

// handleCreateSession creates a session (§6 `POST /api/session`).
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectPath == "" || req.WorktreePath == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "projectPath, worktreePath, and agentId are required")
		return
	}

	strategy := sessionstate.Strategy(req.Strategy)

	command := req.Command
	args := req.Args
	newlineOnAutoApproval := true
	if g.Config != nil {
		if def, ok := agents.NewRegistry(g.Config.Agents).Get(req.AgentID); ok {
			newlineOnAutoApproval = def.NewlineOnAutoApproval()
			if strategy == "" {
				strategy = agents.Strategy(def)
			}
			// §4.4 "command + baseArgs + derivedArgs": an explicit
			// caller-supplied command overrides the agent's configured
			// one (e.g. the plain-terminal kind); otherwise resolve the
			// agent's command and assemble its option-derived args per
			// §6's option-assembly rules.
			if command == "" {
				command = def.Command
				derived, err := agents.AssembleArgs(def, req.Options)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				args = append(derived, req.Args...)
			}
		}
	}
	if strategy == "" {
		strategy = sessionstate.StrategyUnknown
	}

	m := g.Orch.ManagerFor(req.ProjectPath)
	sess, err := m.Create(session.Config{
		WorktreePath:        req.WorktreePath,
		AgentID:             req.AgentID,
		Strategy:            strategy,
		Command:             command,
		Args:                args,
		AutoApprovalEnabled: g.Config != nil && g.Config.AutoApproval.Enabled,
		AutoApprovalNewline: newlineOnAutoApproval,
		VerifierCommand:     verifierCommand(g.Config),
		VerifierTimeout:     verifierTimeout(g.Config),
		Log:                 g.Log,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, summarize(sess.Snapshot()))
}

func verifierCommand(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.AutoApproval.CustomCommand
}

func verifierTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.AutoApproval.TimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(cfg.AutoApproval.TimeoutSecs) * time.Second
}

type setActiveRequest struct {
	ProjectPath string `json:"projectPath"`
	SessionID   string `json:"sessionId"`
}

// handleSetActive focuses a session (§6 `POST /api/session/set-active`).
func (g *Gateway) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m := g.Orch.ManagerFor(req.ProjectPath)
	if err := m.SetActive(req.SessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeSessionId": req.SessionID})
}

// handleDestroySession destroys a session (§6 `DELETE /api/session/:id`).
// The project is resolved via a query parameter since the id alone
// doesn't carry scope in a multi-project table.
func (g *Gateway) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	projectPath := r.URL.Query().Get("projectPath")
	if projectPath == "" {
		writeError(w, http.StatusBadRequest, "projectPath query parameter is required")
		return
	}
	m := g.Orch.ManagerFor(projectPath)
	if err := m.Destroy(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resizeRequest struct {
	ProjectPath string `json:"projectPath"`
	Cols        int    `json:"cols"`
	Rows        int    `json:"rows"`
}

// handleResize resizes a session's PTY and vterm (§6
// `POST /api/session/:id/resize`). Per the open question on concurrent
// resizes, this applies unconditionally and is last-writer-wins.
func (g *Gateway) handleResize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		writeError(w, http.StatusBadRequest, "cols and rows must be positive")
		return
	}
	m := g.Orch.ManagerFor(req.ProjectPath)
	sess, ok := m.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := sess.Resize(req.Cols, req.Rows); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTDProxy proxies a read-only query over the external task
// database (§6 `GET /api/td/*`). Out of core scope beyond this shape:
// the query logic itself belongs to the external TD reader.
func (g *Gateway) handleTDProxy(w http.ResponseWriter, r *http.Request) {
	if g.TD == nil {
		writeError(w, http.StatusNotFound, "td database not configured")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	if !strings.HasPrefix(strings.TrimSpace(strings.ToUpper(q)), "SELECT") {
		writeError(w, http.StatusBadRequest, "only SELECT queries are proxied")
		return
	}
	cols, rows, err := g.TD.Query(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": cols, "rows": rows})
}

// --- helpers ---------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
