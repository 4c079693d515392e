package session

import (
	"sync"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/sse"
)

// Registry holds every live manager and owns the single hub-signal
// subscription that fans lifecycle events out to all of them. It is
// constructed explicitly and injected so tests can tear it down.
type Registry struct {
	cfg Config
	hub *sse.Hub
	log *logger.Logger

	mu       sync.RWMutex
	managers map[string]*Manager

	unsubscribes []func()
	closeOnce    sync.Once
}

// NewRegistry creates a registry subscribed to the hub's lifecycle
// signals. Call Close to unsubscribe and tear all managers down.
func NewRegistry(hub *sse.Hub, cfg Config, log *logger.Logger) *Registry {
	cfg.ApplyDefaults()
	r := &Registry{
		cfg:      cfg,
		hub:      hub,
		log:      log.WithComponent("session.registry"),
		managers: make(map[string]*Manager),
	}
	r.unsubscribes = []func(){
		hub.Signals().OnConnect(r.relayConnect),
		hub.Signals().OnDisconnect(r.relayDisconnect),
		hub.Signals().OnStateChange(r.relayStateChange),
	}
	return r
}

// Start creates, registers, and arms a manager. The owner connection
// must be open; lifetime 0 takes the configured default and the
// configured maximum caps larger requests.
func (r *Registry) Start(managerID, ownerConnectionID string, sessionIDs []string, lifetime time.Duration) (*Manager, *errors.AppError) {
	if managerID == "" {
		return nil, errors.MissingField("manager_id")
	}
	owner, appErr := r.hub.GetConnection(ownerConnectionID)
	if appErr != nil {
		return nil, appErr
	}
	if !owner.Connected() {
		return nil, errors.ConnectionClosed(ownerConnectionID)
	}
	if lifetime <= 0 {
		lifetime = r.cfg.DefaultLifetime
	}
	if r.cfg.MaxLifetime > 0 && lifetime > r.cfg.MaxLifetime {
		lifetime = r.cfg.MaxLifetime
	}

	mgr := NewManager(managerID, owner, sessionIDs, lifetime, r.log)
	mgr.onClose(func(m *Manager, reason string) {
		r.remove(m.ID())
	})

	r.mu.Lock()
	if _, exists := r.managers[managerID]; exists {
		r.mu.Unlock()
		return nil, errors.AlreadyExists("manager").WithDetail("manager_id", managerID)
	}
	r.managers[managerID] = mgr
	r.mu.Unlock()

	// Arm the timer and owner hook only once registered, so a close
	// racing in from either path finds the registry entry to remove.
	mgr.start()
	return mgr, nil
}

// Get looks a manager up by id.
func (r *Registry) Get(managerID string) (*Manager, *errors.AppError) {
	r.mu.RLock()
	mgr := r.managers[managerID]
	r.mu.RUnlock()
	if mgr == nil {
		return nil, errors.NotFound("manager", managerID)
	}
	return mgr, nil
}

// Delete closes a manager on behalf of its owner. Only the owner
// connection may delete its manager.
func (r *Registry) Delete(managerID, callerConnectionID string) *errors.AppError {
	mgr, appErr := r.authorize(managerID, callerConnectionID)
	if appErr != nil {
		return appErr
	}
	mgr.Close("deleted")
	return nil
}

// AddSession adds a session to a manager's tracked set on behalf of
// its owner.
func (r *Registry) AddSession(managerID, callerConnectionID, sessionID string) *errors.AppError {
	if sessionID == "" {
		return errors.MissingField("session_id")
	}
	mgr, appErr := r.authorize(managerID, callerConnectionID)
	if appErr != nil {
		return appErr
	}
	mgr.AddSession(sessionID)
	return nil
}

// RemoveSession drops a session from a manager's tracked set on behalf
// of its owner.
func (r *Registry) RemoveSession(managerID, callerConnectionID, sessionID string) *errors.AppError {
	mgr, appErr := r.authorize(managerID, callerConnectionID)
	if appErr != nil {
		return appErr
	}
	mgr.RemoveSession(sessionID)
	return nil
}

// SessionDeleted propagates a collaborator-driven session removal to
// every manager tracking it. It returns the number of managers that
// dropped the session.
func (r *Registry) SessionDeleted(sessionID string) int {
	dropped := 0
	for _, mgr := range r.snapshot() {
		if mgr.RemoveSession(sessionID) {
			dropped++
		}
	}
	return dropped
}

// List returns all live managers.
func (r *Registry) List() []*Manager {
	return r.snapshot()
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// Close unsubscribes from the hub and tears every manager down.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		for _, unsubscribe := range r.unsubscribes {
			unsubscribe()
		}
		for _, mgr := range r.snapshot() {
			mgr.Close("registry_shutdown")
		}
	})
}

// authorize resolves the manager and verifies the caller owns it.
func (r *Registry) authorize(managerID, callerConnectionID string) (*Manager, *errors.AppError) {
	mgr, appErr := r.Get(managerID)
	if appErr != nil {
		return nil, appErr
	}
	if mgr.Owner().ID() != callerConnectionID {
		return nil, errors.Forbidden("Only the manager's owner connection may perform this action.").
			WithDetail("manager_id", managerID)
	}
	return mgr, nil
}

// remove drops the registry entry; the manager's own Close already ran.
func (r *Registry) remove(managerID string) {
	r.mu.Lock()
	delete(r.managers, managerID)
	r.mu.Unlock()
}

// snapshot copies the manager set so fan-out tolerates managers closing
// (and deregistering) mid-iteration.
func (r *Registry) snapshot() []*Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, mgr := range r.managers {
		out = append(out, mgr)
	}
	return out
}

func (r *Registry) relayConnect(ev sse.ConnectEvent) {
	for _, mgr := range r.snapshot() {
		mgr.relayConnect(ev)
	}
}

func (r *Registry) relayDisconnect(ev sse.DisconnectEvent) {
	for _, mgr := range r.snapshot() {
		mgr.relayDisconnect(ev)
	}
}

func (r *Registry) relayStateChange(ev sse.StateChangeEvent) {
	for _, mgr := range r.snapshot() {
		mgr.relayStateChange(ev)
	}
}
