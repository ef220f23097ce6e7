// Package manager implements C5, the per-project session manager: a
// keyed table of sessions, the single "active session" flag, event
// re-publication under the project scope, and teardown.
package manager

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/session"
)

// Manager owns every session belonging to one project (keyed by its
// project root path).
type Manager struct {
	ProjectPath string

	bus *eventbus.Bus
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	activeID string
}

// New creates a Manager publishing session-scoped events onto bus.
func New(projectPath string, bus *eventbus.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		ProjectPath: projectPath,
		bus:         bus,
		log:         log,
		sessions:    make(map[string]*session.Session),
	}
}

// Create spawns a new session and registers it in the table. cfg's
// ProjectPath is forced to the manager's own, so callers only need to
// supply worktree/agent/command details.
func (m *Manager) Create(cfg session.Config) (*session.Session, error) {
	cfg.ProjectPath = m.ProjectPath
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	origTransition := cfg.OnTransition
	cfg.OnTransition = func(t eventbus.Transition) {
		if origTransition != nil {
			origTransition(t)
		}
		m.publish(eventbus.Event{
			Kind:        eventbus.KindStateTransition,
			ProjectPath: m.ProjectPath,
			SessionID:   cfg.ID,
			Transition:  &t,
		})
	}

	sess, err := session.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.publish(eventbus.Event{Kind: eventbus.KindSessionCreated, ProjectPath: m.ProjectPath, SessionID: sess.ID})

	go m.watchExit(sess)

	return sess, nil
}

// watchExit clears the active flag and publishes an exit event once the
// child process dies on its own (I6, C5 "On process exit").
func (m *Manager) watchExit(sess *session.Session) {
	<-sess.Done()
	m.mu.Lock()
	if m.activeID == sess.ID {
		m.activeID = ""
	}
	m.mu.Unlock()
	m.publish(eventbus.Event{Kind: eventbus.KindSessionExited, ProjectPath: m.ProjectPath, SessionID: sess.ID})
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ByWorktree returns one session whose WorktreePath matches path, or nil
// if none. When several match, which one is returned is not defined.
func (m *Manager) ByWorktree(path string) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.WorktreePath == path {
			return s
		}
	}
	return nil
}

// AllByWorktree returns every session whose WorktreePath matches path.
func (m *Manager) AllByWorktree(path string) []*session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.sessions {
		if s.WorktreePath == path {
			out = append(out, s)
		}
	}
	return out
}

// List returns a snapshot of all sessions in the table.
func (m *Manager) List() []*session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// SetActive marks id as the focused session (I6: at most one active
// session per project; purely informational, never blocks operations).
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("unknown session %s", id)
	}
	m.activeID = id
	return nil
}

// ActiveID returns the currently active session id, or "" if none.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// CancelAutoApproval cancels an outstanding auto-approval verifier for id.
func (m *Manager) CancelAutoApproval(id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", id)
	}
	s.CancelAutoApproval(reason)
	return nil
}

// Destroy tears down one session: classifier timer, verifier, PTY,
// subscribers, then removes it from the table (C5 "Teardown").
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.activeID == id {
			m.activeID = ""
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %s", id)
	}
	s.Destroy()
	m.publish(eventbus.Event{Kind: eventbus.KindSessionDestroyed, ProjectPath: m.ProjectPath, SessionID: id})
	return nil
}

// Close tears down every session owned by this manager (orchestrator
// hot-reload / process shutdown).
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.Destroy(id)
	}
}

func (m *Manager) publish(ev eventbus.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
