package session

import (
	"sort"
	"sync"
	"time"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/sse"
)

// Events relayed to a manager's owner connection.
const (
	// EventConnectionConnect is the scoped relay for a connect on a
	// tracked session.
	EventConnectionConnect = "connection-connect"

	// EventConnectionDisconnect is the scoped relay for a disconnect on
	// a tracked session.
	EventConnectionDisconnect = "connection-disconnect"

	// EventConnectionState is the scoped relay for a state report on a
	// tracked session.
	EventConnectionState = "connection-state"

	// EventActivity is the unconditional raw-feed summary of every hub
	// lifecycle event, tracked or not.
	EventActivity = "activity"

	// EventSessionAdded and EventSessionRemoved announce tracked-set
	// mutations to the owner.
	EventSessionAdded   = "session-added"
	EventSessionRemoved = "session-removed"

	// EventManagerClosed is the final frame a manager sends its owner.
	EventManagerClosed = "manager-closed"
)

// SessionEvent describes a tracked-set mutation.
type SessionEvent struct {
	ManagerID string    `json:"manager_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// Manager tracks a set of session identifiers on behalf of one owner
// connection and relays hub lifecycle events for them. It is Active
// from Start until the first of: owner disconnect, lifetime expiry, or
// explicit delete. Close is terminal and idempotent.
type Manager struct {
	id       string
	owner    *sse.Connection
	lifetime time.Duration
	log      *logger.Logger
	signals  *sse.Signals

	mu             sync.Mutex
	sessions       map[string]struct{}
	timer          *time.Timer
	closed         bool
	closeListeners []func(*Manager, string)
	sessionAdded   []func(SessionEvent)
	sessionRemoved []func(SessionEvent)
}

// NewManager creates a manager in the pre-start state. The registry
// calls start to arm the lifetime timer and the owner-close hook.
func NewManager(id string, owner *sse.Connection, sessionIDs []string, lifetime time.Duration, log *logger.Logger) *Manager {
	sessions := make(map[string]struct{}, len(sessionIDs))
	for _, sid := range sessionIDs {
		sessions[sid] = struct{}{}
	}
	return &Manager{
		id:       id,
		owner:    owner,
		lifetime: lifetime,
		signals:  sse.NewSignals(),
		sessions: sessions,
		log: log.WithFields(map[string]interface{}{
			logger.FieldManagerID:    id,
			logger.FieldConnectionID: owner.ID(),
		}),
	}
}

// ID returns the manager identifier.
func (m *Manager) ID() string { return m.id }

// Owner returns the owning connection.
func (m *Manager) Owner() *sse.Connection { return m.owner }

// Lifetime returns the configured lifetime.
func (m *Manager) Lifetime() time.Duration { return m.lifetime }

// Signals exposes the manager-scoped lifecycle bus: events for tracked
// sessions replay here in addition to the owner relay.
func (m *Manager) Signals() *sse.Signals { return m.signals }

// Active reports whether the manager has not yet closed.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Sessions returns the tracked session ids, sorted for stable output.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for sid := range m.sessions {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Tracks reports whether the session is in the tracked set.
func (m *Manager) Tracks(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// start arms the lifetime timer and the owner-close hook. Both paths
// converge on Close and may race; Close is idempotent.
func (m *Manager) start() {
	m.mu.Lock()
	m.timer = time.AfterFunc(m.lifetime, func() {
		m.Close("lifetime_expired")
	})
	m.mu.Unlock()

	m.owner.OnClose(func(*sse.Connection) {
		m.Close("owner_disconnected")
	})
	m.log.Info("manager started", map[string]interface{}{
		"lifetime": m.lifetime.String(),
		"sessions": len(m.sessions),
	})
}

// AddSession adds a session to the tracked set, fires the
// session-added signal, and notifies the owner. Adding an already
// tracked or unknown-to-the-store session is allowed; the manager
// tracks identifiers, not records.
func (m *Manager) AddSession(sessionID string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return false
	}
	m.sessions[sessionID] = struct{}{}
	listeners := append([]func(SessionEvent){}, m.sessionAdded...)
	m.mu.Unlock()

	ev := SessionEvent{ManagerID: m.id, SessionID: sessionID, At: time.Now()}
	for _, fn := range listeners {
		fn(ev)
	}
	m.sendToOwner(EventSessionAdded, ev)
	return true
}

// RemoveSession drops a session from the tracked set, fires the
// session-removed signal, and notifies the owner. An empty tracked set
// leaves the manager inert but alive.
func (m *Manager) RemoveSession(sessionID string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, sessionID)
	listeners := append([]func(SessionEvent){}, m.sessionRemoved...)
	m.mu.Unlock()

	ev := SessionEvent{ManagerID: m.id, SessionID: sessionID, At: time.Now()}
	for _, fn := range listeners {
		fn(ev)
	}
	m.sendToOwner(EventSessionRemoved, ev)
	return true
}

// OnSessionAdded registers a listener for tracked-set additions.
func (m *Manager) OnSessionAdded(fn func(SessionEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionAdded = append(m.sessionAdded, fn)
}

// OnSessionRemoved registers a listener for tracked-set removals.
func (m *Manager) OnSessionRemoved(fn func(SessionEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionRemoved = append(m.sessionRemoved, fn)
}

// onClose registers the registry's removal hook.
func (m *Manager) onClose(fn func(*Manager, string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeListeners = append(m.closeListeners, fn)
}

// Close tears the manager down: disarms the lifetime timer, clears the
// tracked set, fires close listeners, and sends the owner a final
// closed event. Owner disconnect, lifetime expiry, and explicit delete
// all land here; only the first call has any effect.
func (m *Manager) Close(reason string) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.sessions = make(map[string]struct{})
	listeners := m.closeListeners
	m.closeListeners = nil
	m.sessionAdded = nil
	m.sessionRemoved = nil
	m.mu.Unlock()

	// Cleanup before notify: the registry entry is gone before the
	// owner learns about the close.
	for _, fn := range listeners {
		fn(m, reason)
	}
	m.sendToOwner(EventManagerClosed, map[string]string{
		"manager_id": m.id,
		"reason":     reason,
	})
	m.log.Info("manager closed", map[string]interface{}{"reason": reason})
	return true
}

// relayConnect fans one hub connect event through the manager: a scoped
// relay plus the manager signal when the session is tracked, and the
// raw activity summary unconditionally. Events about the owner's own
// session are not echoed back scoped.
func (m *Manager) relayConnect(ev sse.ConnectEvent) {
	if !m.Active() {
		return
	}
	if m.Tracks(ev.SessionID) {
		m.signals.PublishConnect(ev)
		if ev.SessionID != m.owner.SessionID() {
			m.sendToOwner(EventConnectionConnect, relayPayload(m.id, ev.ConnectionID, ev.SessionID, nil))
		}
	}
	m.sendToOwner(EventActivity, activityPayload(m.id, "connect", ev.ConnectionID, ev.SessionID))
}

// relayDisconnect mirrors relayConnect for disconnects.
func (m *Manager) relayDisconnect(ev sse.DisconnectEvent) {
	if !m.Active() {
		return
	}
	if m.Tracks(ev.SessionID) {
		m.signals.PublishDisconnect(ev)
		if ev.SessionID != m.owner.SessionID() {
			payload := relayPayload(m.id, ev.ConnectionID, ev.SessionID, nil)
			payload["reason"] = ev.Reason
			m.sendToOwner(EventConnectionDisconnect, payload)
		}
	}
	m.sendToOwner(EventActivity, activityPayload(m.id, "disconnect", ev.ConnectionID, ev.SessionID))
}

// relayStateChange mirrors relayConnect for state reports.
func (m *Manager) relayStateChange(ev sse.StateChangeEvent) {
	if !m.Active() {
		return
	}
	if m.Tracks(ev.SessionID) {
		m.signals.PublishStateChange(ev)
		if ev.SessionID != m.owner.SessionID() {
			m.sendToOwner(EventConnectionState, relayPayload(m.id, ev.ConnectionID, ev.SessionID, ev.State))
		}
	}
	m.sendToOwner(EventActivity, activityPayload(m.id, "state-change", ev.ConnectionID, ev.SessionID))
}

// sendToOwner delivers best-effort: a failing owner stream is the
// hub's problem to evict, not the relay's.
func (m *Manager) sendToOwner(event string, payload any) {
	if _, err := m.owner.Send(event, payload); err != nil {
		m.log.Warn("owner relay failed", map[string]interface{}{
			logger.FieldEvent: event,
			logger.FieldError: err.Error(),
		})
	}
}

func relayPayload(managerID, connectionID, sessionID string, state any) map[string]any {
	p := map[string]any{
		"manager_id":    managerID,
		"connection_id": connectionID,
		"session_id":    sessionID,
	}
	if state != nil {
		p["state"] = state
	}
	return p
}

func activityPayload(managerID, kind, connectionID, sessionID string) map[string]any {
	return map[string]any{
		"manager_id":    managerID,
		"type":          kind,
		"connection_id": connectionID,
		"session_id":    sessionID,
	}
}
