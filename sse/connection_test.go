package sse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

func testConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

func newTestConnection(t *testing.T, cfg Config) *Connection {
	t.Helper()
	return NewConnection("session-1", cfg, logger.NewDefault("test"))
}

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func TestConnection_SendAssignsSequentialIDs(t *testing.T) {
	conn := newTestConnection(t, testConfig())

	for want := int64(0); want < 3; want++ {
		got, err := conn.Send("update", map[string]string{"n": "x"})
		if err != nil {
			t.Fatalf("send %d: %v", want, err)
		}
		if got != want {
			t.Errorf("sequence id = %d, want %d", got, want)
		}
	}

	for want := int64(0); want < 3; want++ {
		f := decodeFrame(t, <-conn.Frames())
		if f.ID != want || f.Event != "update" {
			t.Errorf("frame = {%s %d}, want {update %d}", f.Event, f.ID, want)
		}
	}
}

func TestConnection_CacheBounded(t *testing.T) {
	cfg := testConfig()
	cfg.CacheCapacity = 5
	cfg.ChannelBuffer = 64
	conn := newTestConnection(t, cfg)

	for i := 0; i < 20; i++ {
		if _, err := conn.Send("update", i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	entries := conn.CacheEntries()
	if len(entries) != 5 {
		t.Fatalf("cache length = %d, want 5", len(entries))
	}
	// Oldest evicted first: survivors are the newest five, in order.
	for i, entry := range entries {
		if want := int64(15 + i); entry.SequenceID != want {
			t.Errorf("entry %d sequence id = %d, want %d", i, entry.SequenceID, want)
		}
	}
}

func TestConnection_AckPurgesPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.ChannelBuffer = 64
	conn := newTestConnection(t, cfg)

	for i := 0; i < 6; i++ {
		if _, err := conn.Send("update", i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if purged := conn.Ack(3); purged != 4 {
		t.Errorf("Ack(3) purged %d, want 4", purged)
	}
	if got := conn.CacheLen(); got != 2 {
		t.Errorf("cache length after ack = %d, want 2", got)
	}
	// Acking an already-purged id is a no-op.
	if purged := conn.Ack(3); purged != 0 {
		t.Errorf("repeat Ack(3) purged %d, want 0", purged)
	}
	if purged := conn.Ack(100); purged != 2 {
		t.Errorf("Ack(100) purged %d, want 2", purged)
	}
}

func TestConnection_BackpressureFailsWithoutAdvancingSequence(t *testing.T) {
	cfg := testConfig()
	cfg.ChannelBuffer = 2
	conn := newTestConnection(t, cfg)

	if _, err := conn.Send("update", 0); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := conn.Send("update", 1); err != nil {
		t.Fatalf("second send: %v", err)
	}

	_, appErr := conn.Send("update", 2)
	if appErr == nil || appErr.Code != errors.ErrCodeStreamBackpressure {
		t.Fatalf("expected STREAM_BACKPRESSURE, got %v", appErr)
	}
	if got := conn.CacheLen(); got != 2 {
		t.Errorf("cache length = %d, failed send must not cache", got)
	}

	// Drain one slot; the next send reuses the skipped sequence id.
	<-conn.Frames()
	seq, err := conn.Send("update", 2)
	if err != nil {
		t.Fatalf("send after drain: %v", err)
	}
	if seq != 2 {
		t.Errorf("sequence id after failed send = %d, want 2", seq)
	}
}

func TestConnection_RetryCeilingAndTTL(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.CacheTTL = 30 * time.Second
	cfg.ChannelBuffer = 64
	conn := newTestConnection(t, cfg)

	if _, err := conn.Send("update", "payload"); err != nil {
		t.Fatalf("send: %v", err)
	}
	now := time.Now()

	for attempt := 1; attempt <= 2; attempt++ {
		retried, dropped := conn.RetryCached(now)
		if retried != 1 || dropped != 0 {
			t.Fatalf("attempt %d: retried=%d dropped=%d, want 1/0", attempt, retried, dropped)
		}
	}
	// Third pass hits the ceiling.
	retried, dropped := conn.RetryCached(now)
	if retried != 0 || dropped != 1 {
		t.Fatalf("ceiling pass: retried=%d dropped=%d, want 0/1", retried, dropped)
	}
	if got := conn.CacheLen(); got != 0 {
		t.Errorf("cache length after ceiling drop = %d, want 0", got)
	}

	// TTL expiry drops without any retry attempt.
	if _, err := conn.Send("update", "expiring"); err != nil {
		t.Fatalf("send: %v", err)
	}
	retried, dropped = conn.RetryCached(now.Add(cfg.CacheTTL + time.Second))
	if retried != 0 || dropped != 1 {
		t.Fatalf("ttl pass: retried=%d dropped=%d, want 0/1", retried, dropped)
	}
}

func TestConnection_RetryCountsAttemptOnFullBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.ChannelBuffer = 1
	conn := newTestConnection(t, cfg)

	if _, err := conn.Send("update", "payload"); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Buffer is now full; the retry write cannot land but still counts.
	now := time.Now()
	if retried, _ := conn.RetryCached(now); retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}
	if _, dropped := conn.RetryCached(now); dropped != 1 {
		t.Fatalf("second pass must drop at the ceiling")
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn := newTestConnection(t, testConfig())

	fired := 0
	conn.OnClose(func(*Connection) { fired++ })

	conn.Close()
	conn.Close()
	conn.Close()

	if fired != 1 {
		t.Errorf("close listener fired %d times, want 1", fired)
	}
	if conn.Connected() {
		t.Error("connection still reports connected after close")
	}
	if got := conn.CacheLen(); got != 0 {
		t.Errorf("cache length after close = %d, want 0", got)
	}

	_, appErr := conn.Send("update", "late")
	if appErr == nil || appErr.Code != errors.ErrCodeConnectionClosed {
		t.Fatalf("expected CONNECTION_CLOSED, got %v", appErr)
	}
}

func TestConnection_OnCloseAfterClosedFiresImmediately(t *testing.T) {
	conn := newTestConnection(t, testConfig())
	conn.Close()

	fired := false
	conn.OnClose(func(*Connection) { fired = true })
	if !fired {
		t.Error("listener registered after close did not fire")
	}
}

func TestConnection_CloseEmitsFinalFrame(t *testing.T) {
	conn := newTestConnection(t, testConfig())
	conn.Close()

	var last Frame
	for raw := range conn.Frames() {
		last = decodeFrame(t, raw)
	}
	if last.Event != EventClose {
		t.Errorf("last frame event = %q, want %q", last.Event, EventClose)
	}
}

func TestConnection_ReportStateRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.StateMinInterval = time.Hour
	conn := newTestConnection(t, cfg)

	if err := conn.ReportState(map[string]string{"view": "board"}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	appErr := conn.ReportState(map[string]string{"view": "chat"})
	if appErr == nil || appErr.Code != errors.ErrCodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", appErr)
	}
	// The rejected report must not overwrite the stored state.
	state, ok := conn.State().(map[string]string)
	if !ok || state["view"] != "board" {
		t.Errorf("state = %v, want first report preserved", conn.State())
	}
}

func TestConnection_PingUpdatesLivenessAndEmitsFrame(t *testing.T) {
	conn := newTestConnection(t, testConfig())

	now := time.Now().Add(time.Minute)
	if _, err := conn.Ping(now); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !conn.LastPing().Equal(now) {
		t.Errorf("last ping = %v, want %v", conn.LastPing(), now)
	}
	f := decodeFrame(t, <-conn.Frames())
	if f.Event != EventPing {
		t.Errorf("frame event = %q, want %q", f.Event, EventPing)
	}
}
