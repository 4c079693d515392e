package sse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

type fakeSessionStore struct {
	mu   sync.Mutex
	tabs map[string]int
	fail bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{tabs: make(map[string]int)}
}

func (s *fakeSessionStore) IncrementTabs(_ context.Context, sessionID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.StoreError("increment_tabs", nil)
	}
	s.tabs[sessionID] += delta
	return s.tabs[sessionID], nil
}

func (s *fakeSessionStore) count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs[sessionID]
}

func newTestHub(t *testing.T, cfg Config, opts ...Option) *Hub {
	t.Helper()
	return NewHub(cfg, logger.NewDefault("test"), opts...)
}

func TestHub_ConnectSendsConnectedFrameFirst(t *testing.T) {
	hub := newTestHub(t, Config{})
	ctx := context.Background()

	conn, appErr := hub.Connect(ctx, "session-1")
	if appErr != nil {
		t.Fatalf("connect: %v", appErr)
	}

	f := decodeFrame(t, <-conn.Frames())
	if f.Event != EventConnected || f.ID != 0 {
		t.Errorf("first frame = {%s %d}, want {%s 0}", f.Event, f.ID, EventConnected)
	}

	got, err := hub.GetConnection(conn.ID())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != conn {
		t.Error("registry returned a different connection")
	}
}

func TestHub_ConnectRequiresSessionID(t *testing.T) {
	hub := newTestHub(t, Config{})
	_, appErr := hub.Connect(context.Background(), "")
	if appErr == nil || appErr.Code != errors.ErrCodeMissingField {
		t.Fatalf("expected MISSING_FIELD, got %v", appErr)
	}
}

func TestHub_ConnectTracksTabCount(t *testing.T) {
	store := newFakeSessionStore()
	hub := newTestHub(t, Config{}, WithSessionStore(store))
	ctx := context.Background()

	c1, _ := hub.Connect(ctx, "session-1")
	c2, _ := hub.Connect(ctx, "session-1")
	if got := store.count("session-1"); got != 2 {
		t.Errorf("tab count = %d, want 2", got)
	}

	hub.Disconnect(c1.ID(), "test")
	hub.Disconnect(c2.ID(), "test")
	if got := store.count("session-1"); got != 0 {
		t.Errorf("tab count after disconnects = %d, want 0", got)
	}
}

func TestHub_ConnectSurvivesStoreFailure(t *testing.T) {
	store := newFakeSessionStore()
	store.fail = true
	hub := newTestHub(t, Config{}, WithSessionStore(store))

	conn, appErr := hub.Connect(context.Background(), "session-1")
	if appErr != nil {
		t.Fatalf("connect must not depend on the store: %v", appErr)
	}
	if _, err := hub.GetConnection(conn.ID()); err != nil {
		t.Errorf("connection not registered: %v", err)
	}
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	store := newFakeSessionStore()
	hub := newTestHub(t, Config{}, WithSessionStore(store))
	conn, _ := hub.Connect(context.Background(), "session-1")

	hub.Disconnect(conn.ID(), "test")
	hub.Disconnect(conn.ID(), "test")
	hub.Disconnect("no-such-connection", "test")

	if got := store.count("session-1"); got != 0 {
		t.Errorf("tab count = %d, repeated disconnects must decrement once", got)
	}
	if _, err := hub.GetConnection(conn.ID()); err == nil {
		t.Error("connection still registered after disconnect")
	}
}

func TestHub_FromSessionGroupsConnections(t *testing.T) {
	hub := newTestHub(t, Config{})
	ctx := context.Background()

	c1, _ := hub.Connect(ctx, "session-1")
	c2, _ := hub.Connect(ctx, "session-1")
	hub.Connect(ctx, "session-2")

	arr := hub.FromSession("session-1")
	if arr.Len() != 2 {
		t.Fatalf("view size = %d, want 2", arr.Len())
	}
	if failed := arr.Notify(map[string]string{"kind": "test"}); failed != nil {
		t.Fatalf("fan-out failed: %v", failed)
	}
	for _, conn := range []*Connection{c1, c2} {
		<-conn.Frames() // connected
		f := decodeFrame(t, <-conn.Frames())
		if f.Event != EventNotification {
			t.Errorf("frame event = %q, want %q", f.Event, EventNotification)
		}
	}

	if got := hub.FromSession("no-such-session").Len(); got != 0 {
		t.Errorf("unknown session view size = %d, want 0", got)
	}
}

func TestConnectionArray_AddRemoveEach(t *testing.T) {
	hub := newTestHub(t, Config{})
	ctx := context.Background()

	c1, _ := hub.Connect(ctx, "session-1")
	late, _ := hub.Connect(ctx, "session-1")

	arr := NewConnectionArray("session-1", []*Connection{c1})
	arr.Add(late)
	arr.Add(late) // duplicate is a no-op
	if arr.Len() != 2 {
		t.Fatalf("view size = %d, want 2", arr.Len())
	}

	var seen []string
	arr.Each(func(c *Connection) { seen = append(seen, c.ID()) })
	if len(seen) != 2 || seen[0] != c1.ID() || seen[1] != late.ID() {
		t.Errorf("Each visited %v, want [%s %s]", seen, c1.ID(), late.ID())
	}

	if !arr.Remove(c1.ID()) {
		t.Error("Remove reported no member removed")
	}
	if arr.Remove(c1.ID()) {
		t.Error("second Remove of same id should report false")
	}
	if arr.Len() != 1 || arr.Connections()[0].ID() != late.ID() {
		t.Errorf("unexpected members after remove: %d", arr.Len())
	}
}

func TestHub_ConnectionArrayReportsPartialFailure(t *testing.T) {
	cfg := Config{ChannelBuffer: 1}
	hub := newTestHub(t, cfg)
	ctx := context.Background()

	healthy, _ := hub.Connect(ctx, "session-1")
	<-healthy.Frames() // drain connected so the next send lands
	full, _ := hub.Connect(ctx, "session-1")
	// full's buffer already holds the connected frame.

	failed := hub.FromSession("session-1").Send("update", "payload")
	if len(failed) != 1 {
		t.Fatalf("failed map size = %d, want 1", len(failed))
	}
	if appErr := failed[full.ID()]; appErr == nil || appErr.Code != errors.ErrCodeStreamBackpressure {
		t.Errorf("expected STREAM_BACKPRESSURE for %s, got %v", full.ID(), failed)
	}
	f := decodeFrame(t, <-healthy.Frames())
	if f.Event != "update" {
		t.Errorf("healthy member frame = %q, frames already delivered must stand", f.Event)
	}
}

func TestHub_BroadcastEvictsFailedConnections(t *testing.T) {
	cfg := Config{ChannelBuffer: 1}
	hub := newTestHub(t, cfg)
	ctx := context.Background()

	healthy, _ := hub.Connect(ctx, "session-1")
	<-healthy.Frames()
	full, _ := hub.Connect(ctx, "session-2")

	sent := hub.Send(ctx, "update", "payload", nil)
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if _, err := hub.GetConnection(full.ID()); err == nil {
		t.Error("failed connection still registered after broadcast")
	}
	if _, err := hub.GetConnection(healthy.ID()); err != nil {
		t.Errorf("healthy connection evicted: %v", err)
	}
}

func TestHub_SendConditionFiltersRecipients(t *testing.T) {
	hub := newTestHub(t, Config{})
	ctx := context.Background()

	match, _ := hub.Connect(ctx, "session-1")
	<-match.Frames()
	other, _ := hub.Connect(ctx, "session-2")
	<-other.Frames()

	sent := hub.Send(ctx, "update", "payload", func(c *Connection) bool {
		return c.SessionID() == "session-1"
	})
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	f := decodeFrame(t, <-match.Frames())
	if f.Event != "update" {
		t.Errorf("matching connection frame = %q, want %q", f.Event, "update")
	}
	select {
	case frame := <-other.Frames():
		t.Errorf("filtered connection received %s", frame)
	default:
	}

	// Skipped is not failed: the non-matching connection stays registered.
	if _, err := hub.GetConnection(other.ID()); err != nil {
		t.Errorf("filtered connection evicted: %v", err)
	}
}

func TestHub_SweepEvictsStaleAndRetainsLive(t *testing.T) {
	cfg := Config{DisconnectTimeout: 35 * time.Second}
	hub := newTestHub(t, cfg)
	ctx := context.Background()

	stale, _ := hub.Connect(ctx, "session-1")
	live, _ := hub.Connect(ctx, "session-2")

	now := time.Now()
	stale.TouchPing(now.Add(-time.Minute))
	live.TouchPing(now)

	if evicted := hub.sweep(ctx, now, hub.cfg.DisconnectTimeout); evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, err := hub.GetConnection(stale.ID()); err == nil {
		t.Error("stale connection survived the sweep")
	}
	if _, err := hub.GetConnection(live.ID()); err != nil {
		t.Errorf("live connection evicted: %v", err)
	}
	if stale.Connected() {
		t.Error("evicted connection not closed")
	}
}

func TestHub_SweepPingsAndRetries(t *testing.T) {
	cfg := Config{ChannelBuffer: 64}
	hub := newTestHub(t, cfg)
	ctx := context.Background()

	conn, _ := hub.Connect(ctx, "session-1")
	<-conn.Frames() // connected

	now := time.Now()
	hub.sweep(ctx, now, hub.cfg.DisconnectTimeout)

	// The sweep pings first, then re-emits the still-cached connected
	// frame and the ping itself stays cached for the next pass.
	f := decodeFrame(t, <-conn.Frames())
	if f.Event != EventPing {
		t.Fatalf("first sweep frame = %q, want %q", f.Event, EventPing)
	}
	f = decodeFrame(t, <-conn.Frames())
	if f.Event != EventConnected {
		t.Fatalf("retried frame = %q, want %q", f.Event, EventConnected)
	}
	if !conn.LastPing().Equal(now) {
		t.Errorf("last ping = %v, want %v", conn.LastPing(), now)
	}
}

func TestHub_ForceCleanupHonorsMaxAge(t *testing.T) {
	cfg := Config{DisconnectTimeout: 35 * time.Second}
	hub := newTestHub(t, cfg)
	ctx := context.Background()

	idle, _ := hub.Connect(ctx, "session-1")
	fresh, _ := hub.Connect(ctx, "session-2")

	// Idle for 10s: inside the configured timeout, so a default pass
	// keeps it.
	idle.TouchPing(time.Now().Add(-10 * time.Second))
	if evicted := hub.ForceCleanup(ctx, 0); evicted != 0 {
		t.Fatalf("default pass evicted = %d, want 0", evicted)
	}

	// The pass pinged the survivors, so re-age the idle connection, then
	// force a tighter window: now it goes while the fresh one stays.
	idle.TouchPing(time.Now().Add(-10 * time.Second))
	if evicted := hub.ForceCleanup(ctx, 5*time.Second); evicted != 1 {
		t.Fatalf("tightened pass evicted = %d, want 1", evicted)
	}
	if _, err := hub.GetConnection(idle.ID()); err == nil {
		t.Error("idle connection survived the tightened window")
	}
	if _, err := hub.GetConnection(fresh.ID()); err != nil {
		t.Errorf("fresh connection evicted: %v", err)
	}
}

func TestHub_NoDisconnectSignalWithoutConnect(t *testing.T) {
	store := newFakeSessionStore()
	hub := newTestHub(t, Config{}, WithSessionStore(store))

	var disconnects []DisconnectEvent
	hub.Signals().OnDisconnect(func(ev DisconnectEvent) { disconnects = append(disconnects, ev) })

	// A connection that never completed registration must leave no
	// trace: remove is the only disconnect publisher and it requires a
	// registry entry.
	orphan := NewConnection("session-1", hub.Config(), logger.NewDefault("test"))
	hub.remove(orphan, "never_registered")

	if len(disconnects) != 0 {
		t.Errorf("disconnect signals = %+v, want none for an unregistered connection", disconnects)
	}
	if got := store.count("session-1"); got != 0 {
		t.Errorf("tab count = %d, removal of an unregistered connection must not decrement", got)
	}
}

func TestHub_AckViaHubPurgesCache(t *testing.T) {
	hub := newTestHub(t, Config{})
	conn, _ := hub.Connect(context.Background(), "session-1")

	if appErr := hub.ReceiveAck(conn.ID(), 0); appErr != nil {
		t.Fatalf("ack: %v", appErr)
	}
	if got := conn.CacheLen(); got != 0 {
		t.Errorf("cache length = %d, want 0", got)
	}

	appErr := hub.ReceiveAck("no-such-connection", 0)
	if appErr == nil || appErr.Code != errors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", appErr)
	}
}

func TestHub_ReceiveStatePublishesSignal(t *testing.T) {
	hub := newTestHub(t, Config{})
	conn, _ := hub.Connect(context.Background(), "session-1")

	var got StateChangeEvent
	unsubscribe := hub.Signals().OnStateChange(func(ev StateChangeEvent) { got = ev })
	defer unsubscribe()

	if appErr := hub.ReceiveState(conn.ID(), map[string]string{"view": "board"}); appErr != nil {
		t.Fatalf("receive state: %v", appErr)
	}
	if got.ConnectionID != conn.ID() || got.SessionID != "session-1" {
		t.Errorf("signal = %+v, want connection %s", got, conn.ID())
	}

	// A rate-limited report must not publish.
	got = StateChangeEvent{}
	if appErr := hub.ReceiveState(conn.ID(), "again"); appErr == nil {
		t.Fatal("expected rate-limited error")
	}
	if got.ConnectionID != "" {
		t.Error("rejected report published a signal")
	}
}

func TestHub_SignalsFireOnConnectAndDisconnect(t *testing.T) {
	hub := newTestHub(t, Config{})

	var connects []ConnectEvent
	var disconnects []DisconnectEvent
	hub.Signals().OnConnect(func(ev ConnectEvent) { connects = append(connects, ev) })
	hub.Signals().OnDisconnect(func(ev DisconnectEvent) { disconnects = append(disconnects, ev) })

	conn, _ := hub.Connect(context.Background(), "session-1")
	hub.Disconnect(conn.ID(), "test_reason")

	if len(connects) != 1 || connects[0].SessionID != "session-1" {
		t.Errorf("connect signals = %+v", connects)
	}
	if len(disconnects) != 1 || disconnects[0].Reason != "test_reason" {
		t.Errorf("disconnect signals = %+v", disconnects)
	}
}

func TestHub_StatsSnapshot(t *testing.T) {
	hub := newTestHub(t, Config{})
	ctx := context.Background()

	hub.Connect(ctx, "session-1")
	hub.Connect(ctx, "session-1")
	hub.Connect(ctx, "session-2")

	st := hub.Stats()
	if st.Connections != 3 {
		t.Errorf("connections = %d, want 3", st.Connections)
	}
	if st.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", st.Sessions)
	}
	if st.CachedFrames != 3 {
		t.Errorf("cached frames = %d, want 3 connected frames", st.CachedFrames)
	}
}

func TestHub_StopClosesEverything(t *testing.T) {
	hub := newTestHub(t, Config{SweepInterval: 10 * time.Millisecond, DisconnectTimeout: 50 * time.Millisecond})
	go hub.Run()

	conn, _ := hub.Connect(context.Background(), "session-1")
	hub.Stop()

	if conn.Connected() {
		t.Error("connection open after hub stop")
	}
	if got := hub.Stats().Connections; got != 0 {
		t.Errorf("connections after stop = %d, want 0", got)
	}
	// Stop is idempotent.
	hub.Stop()
}
