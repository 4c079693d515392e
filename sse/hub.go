package sse

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// SessionStore is the slice of the session layer the hub needs: tab
// counting on connect and disconnect. Failures are logged and ignored —
// connection registration never depends on the store being up.
type SessionStore interface {
	IncrementTabs(ctx context.Context, sessionID string, delta int) (int, error)
}

// Option configures optional hub collaborators.
type Option func(*Hub)

// WithSessionStore wires a session store for tab counting.
func WithSessionStore(store SessionStore) Option {
	return func(h *Hub) { h.store = store }
}

// WithMetrics wires stream metrics.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Stats is a point-in-time snapshot of the hub for the stats endpoint.
type Stats struct {
	Connections  int       `json:"connections"`
	Sessions     int       `json:"sessions"`
	CachedFrames int       `json:"cached_frames"`
	OldestPing   time.Time `json:"oldest_ping,omitempty"`
}

// Hub is the process-wide connection registry. It owns the periodic
// sweep that pings every connection, retries cached frames, and evicts
// connections whose ping is older than the disconnect timeout.
type Hub struct {
	cfg     Config
	log     *logger.Logger
	signals *Signals
	store   SessionStore
	metrics *observability.StreamMetrics

	mu          sync.RWMutex
	connections map[string]*Connection
	sessions    map[string]map[string]*Connection

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHub creates a hub with defaults applied to cfg.
func NewHub(cfg Config, log *logger.Logger, opts ...Option) *Hub {
	cfg.ApplyDefaults()
	h := &Hub{
		cfg:         cfg,
		log:         log.WithComponent("sse.hub"),
		signals:     NewSignals(),
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]*Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Signals exposes the hub's lifecycle event bus.
func (h *Hub) Signals() *Signals { return h.signals }

// Config returns the hub's effective configuration.
func (h *Hub) Config() Config { return h.cfg }

// Connect creates and registers a connection for the session, emits the
// initial connected frame, bumps the session's tab count, and publishes
// a connect signal. The connection is live once Connect returns.
func (h *Hub) Connect(ctx context.Context, sessionID string) (*Connection, *errors.AppError) {
	if sessionID == "" {
		return nil, errors.MissingField("session_id")
	}

	conn := NewConnection(sessionID, h.cfg, h.log)

	// The connected frame goes out before the connection is registered:
	// a failure here leaves no registry entry behind and publishes no
	// signals, so observers never see a disconnect without its connect.
	if _, err := conn.Send(EventConnected, map[string]string{
		"connection_id": conn.ID(),
		"session_id":    sessionID,
	}); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.connections[conn.ID()] = conn
	bySession := h.sessions[sessionID]
	if bySession == nil {
		bySession = make(map[string]*Connection)
		h.sessions[sessionID] = bySession
	}
	bySession[conn.ID()] = conn
	h.mu.Unlock()

	if h.store != nil {
		if _, err := h.store.IncrementTabs(ctx, sessionID, 1); err != nil {
			h.log.Warn("tab count increment failed", logger.ErrorFields("increment_tabs", err))
		}
	}
	if h.metrics != nil {
		h.metrics.RecordConnect(ctx)
		h.metrics.RecordSent(ctx, EventConnected)
	}

	h.log.Info("connection registered", map[string]interface{}{
		logger.FieldConnectionID: conn.ID(),
		logger.FieldSessionID:    sessionID,
	})
	h.signals.PublishConnect(ConnectEvent{
		ConnectionID: conn.ID(),
		SessionID:    sessionID,
		At:           time.Now(),
	})
	return conn, nil
}

// Disconnect closes and deregisters the connection. Unknown ids are a
// no-op: the sweep and a client-driven disconnect may race.
func (h *Hub) Disconnect(connectionID, reason string) {
	h.mu.RLock()
	conn := h.connections[connectionID]
	h.mu.RUnlock()
	if conn == nil {
		return
	}
	conn.Close()
	h.remove(conn, reason)
}

// GetConnection looks a connection up by id.
func (h *Hub) GetConnection(connectionID string) (*Connection, *errors.AppError) {
	h.mu.RLock()
	conn := h.connections[connectionID]
	h.mu.RUnlock()
	if conn == nil {
		return nil, errors.NotFound("connection", connectionID)
	}
	return conn, nil
}

// FromSession returns a fan-out view over the session's current
// connections. The view may be empty.
func (h *Hub) FromSession(sessionID string) *ConnectionArray {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.sessions[sessionID]))
	for _, conn := range h.sessions[sessionID] {
		conns = append(conns, conn)
	}
	return NewConnectionArray(sessionID, conns)
}

// Send broadcasts the event to every registered connection matching
// condition; a nil condition matches all. Skipped connections are left
// untouched. Delivery is best-effort: connections that fail the write
// are evicted, the rest keep their frames. It returns the number of
// successful deliveries.
func (h *Hub) Send(ctx context.Context, event string, payload any, condition func(*Connection) bool) int {
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range snapshot {
		if condition != nil && !condition(conn) {
			continue
		}
		if _, err := conn.Send(event, payload); err != nil {
			h.log.Warn("broadcast send failed, evicting connection", map[string]interface{}{
				logger.FieldConnectionID: conn.ID(),
				logger.FieldError:        err.Error(),
			})
			h.evict(ctx, conn, "send_failed")
			continue
		}
		sent++
		if h.metrics != nil {
			h.metrics.RecordSent(ctx, event)
		}
	}
	return sent
}

// Notify broadcasts a notification event to every connection.
func (h *Hub) Notify(ctx context.Context, notification any) int {
	return h.Send(ctx, EventNotification, notification, nil)
}

// ReceivePing records a client-initiated ping on the connection.
func (h *Hub) ReceivePing(connectionID string) *errors.AppError {
	conn, err := h.GetConnection(connectionID)
	if err != nil {
		return err
	}
	conn.TouchPing(time.Now())
	return nil
}

// ReceiveAck purges the connection's cache up to sequenceID inclusive.
func (h *Hub) ReceiveAck(connectionID string, sequenceID int64) *errors.AppError {
	conn, err := h.GetConnection(connectionID)
	if err != nil {
		return err
	}
	purged := conn.Ack(sequenceID)
	h.log.Debug("ack received", map[string]interface{}{
		logger.FieldConnectionID: connectionID,
		logger.FieldSequenceID:   sequenceID,
		"purged":                 purged,
	})
	return nil
}

// ReceiveState records a client state report and, when accepted,
// publishes a state-change signal.
func (h *Hub) ReceiveState(connectionID string, state any) *errors.AppError {
	conn, err := h.GetConnection(connectionID)
	if err != nil {
		return err
	}
	if err := conn.ReportState(state); err != nil {
		return err
	}
	h.signals.PublishStateChange(StateChangeEvent{
		ConnectionID: connectionID,
		SessionID:    conn.SessionID(),
		State:        state,
		At:           time.Now(),
	})
	return nil
}

// Run drives the periodic sweep until Stop. Call it on its own
// goroutine.
func (h *Hub) Run() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	h.log.Info("sweep loop started", map[string]interface{}{
		"interval":           h.cfg.SweepInterval.String(),
		"disconnect_timeout": h.cfg.DisconnectTimeout.String(),
	})
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.sweep(context.Background(), time.Now(), h.cfg.DisconnectTimeout)
		}
	}
}

// Stop terminates the sweep loop and closes every connection. Safe to
// call more than once; it blocks until a started Run loop has exited.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	if h.running.Load() {
		<-h.done
	}
	h.CloseAll("shutdown")
}

// CloseAll closes and deregisters every connection.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()
	for _, conn := range snapshot {
		conn.Close()
		h.remove(conn, reason)
	}
}

// ForceCleanup runs one sweep pass immediately, evicting connections
// whose last ping is older than maxAge. A maxAge of zero (or less)
// uses the configured disconnect timeout. It returns the number of
// evicted connections.
func (h *Hub) ForceCleanup(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = h.cfg.DisconnectTimeout
	}
	return h.sweep(ctx, time.Now(), maxAge)
}

// Stats snapshots the hub.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{
		Connections: len(h.connections),
		Sessions:    len(h.sessions),
	}
	for _, conn := range h.connections {
		st.CachedFrames += conn.CacheLen()
		if ping := conn.LastPing(); st.OldestPing.IsZero() || ping.Before(st.OldestPing) {
			st.OldestPing = ping
		}
	}
	return st
}

// sweep is one pass of the maintenance loop: evict connections whose
// last ping is older than maxAge, then ping and retry the survivors. A
// panic in one pass is contained so a single bad connection cannot
// kill the loop.
func (h *Hub) sweep(ctx context.Context, now time.Time, maxAge time.Duration) (evicted int) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("sweep panic recovered", map[string]interface{}{"panic": r})
		}
	}()

	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		if now.Sub(conn.LastPing()) > maxAge {
			h.log.Info("evicting stale connection", map[string]interface{}{
				logger.FieldConnectionID: conn.ID(),
				"last_ping":              conn.LastPing(),
			})
			h.evict(ctx, conn, "stale")
			evicted++
			continue
		}

		if _, err := conn.Ping(now); err != nil {
			h.log.Warn("ping failed, evicting connection", map[string]interface{}{
				logger.FieldConnectionID: conn.ID(),
				logger.FieldError:        err.Error(),
			})
			h.evict(ctx, conn, "ping_failed")
			evicted++
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordSent(ctx, EventPing)
		}

		retried, dropped := conn.RetryCached(now)
		if h.metrics != nil {
			if retried > 0 {
				h.metrics.RecordRetried(ctx, int64(retried))
			}
			if dropped > 0 {
				h.metrics.RecordDropped(ctx, int64(dropped))
			}
		}
	}
	return evicted
}

// evict closes the connection and removes it, recording the reason.
func (h *Hub) evict(ctx context.Context, conn *Connection, reason string) {
	conn.Close()
	h.remove(conn, reason)
	if h.metrics != nil {
		h.metrics.RecordEviction(ctx, reason)
	}
}

// remove deregisters the connection, decrements the session's tab
// count, and publishes a disconnect signal. Idempotent.
func (h *Hub) remove(conn *Connection, reason string) {
	h.mu.Lock()
	if _, ok := h.connections[conn.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID())
	if bySession := h.sessions[conn.SessionID()]; bySession != nil {
		delete(bySession, conn.ID())
		if len(bySession) == 0 {
			delete(h.sessions, conn.SessionID())
		}
	}
	h.mu.Unlock()

	if h.store != nil {
		if _, err := h.store.IncrementTabs(context.Background(), conn.SessionID(), -1); err != nil {
			h.log.Warn("tab count decrement failed", logger.ErrorFields("decrement_tabs", err))
		}
	}
	if h.metrics != nil {
		h.metrics.RecordDisconnect(context.Background())
	}

	h.log.Info("connection removed", map[string]interface{}{
		logger.FieldConnectionID: conn.ID(),
		logger.FieldSessionID:    conn.SessionID(),
		"reason":                 reason,
	})
	h.signals.PublishDisconnect(DisconnectEvent{
		ConnectionID: conn.ID(),
		SessionID:    conn.SessionID(),
		Reason:       reason,
		At:           time.Now(),
	})
}
