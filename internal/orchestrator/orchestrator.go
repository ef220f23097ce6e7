// Package orchestrator implements C6: the process-wide, lazily-created
// table of projectPath → session manager. It is passed explicitly into
// whatever owns it (the daemon, the gateway) rather than held as a
// hidden global, per the design note on singletons and hot reload.
package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/cacd-dev/cacd/internal/eventbus"
	"github.com/cacd-dev/cacd/internal/manager"
)

// Orchestrator owns one manager.Manager per project root.
type Orchestrator struct {
	bus *eventbus.Bus
	log *slog.Logger

	mu       sync.Mutex
	managers map[string]*manager.Manager
}

// New creates an empty Orchestrator. bus is shared by every manager it
// creates, so a single subscriber sees transitions across all projects.
func New(bus *eventbus.Bus, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		bus:      bus,
		log:      log,
		managers: make(map[string]*manager.Manager),
	}
}

// ManagerFor returns the manager for projectPath, creating it
// idempotently under lock if it doesn't exist yet.
func (o *Orchestrator) ManagerFor(projectPath string) *manager.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.managers[projectPath]; ok {
		return m
	}
	m := manager.New(projectPath, o.bus, o.log)
	o.managers[projectPath] = m
	return m
}

// Bus returns the shared event bus every manager publishes onto.
func (o *Orchestrator) Bus() *eventbus.Bus {
	return o.bus
}

// Projects returns the set of project paths with a live manager.
func (o *Orchestrator) Projects() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.managers))
	for p := range o.managers {
		out = append(out, p)
	}
	return out
}

// RemoveProject tears down and forgets the manager for projectPath, if
// any. Used when a project is explicitly removed.
func (o *Orchestrator) RemoveProject(projectPath string) {
	o.mu.Lock()
	m, ok := o.managers[projectPath]
	if ok {
		delete(o.managers, projectPath)
	}
	o.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Close tears down every manager (and therefore every session, timer,
// and subscriber) cleanly. In dev hot-reload mode this must run before
// the process-wide instance is discarded so a reload never leaks file
// descriptors, timers, or child PIDs.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	managers := make([]*manager.Manager, 0, len(o.managers))
	for _, m := range o.managers {
		managers = append(managers, m)
	}
	o.managers = make(map[string]*manager.Manager)
	o.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
	if o.bus != nil {
		o.bus.Close()
	}
}
