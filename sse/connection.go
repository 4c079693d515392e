package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// CacheEntry is one unacknowledged frame in a connection's retry cache.
type CacheEntry struct {
	Event      string
	SequenceID int64
	SentAt     time.Time
	Retries    int

	frame []byte // pre-encoded, re-emitted verbatim on retry
}

// CloseListener is invoked exactly once when a connection closes.
type CloseListener func(*Connection)

// Connection wraps one outbound SSE stream to a single client. Many
// connections may share a session (e.g. multiple browser tabs). All
// methods are safe for concurrent use; outbound frames funnel through
// a buffered channel drained by the transport goroutine, so a full
// buffer is the back-pressure signal that a send fails on.
type Connection struct {
	id        string
	sessionID string
	cfg       Config
	log       *logger.Logger

	mu             sync.Mutex
	seq            int64
	cache          []CacheEntry
	lastPing       time.Time
	frames         chan []byte
	closed         bool
	closeListeners []CloseListener
	lastState      any
	lastStateAt    time.Time
}

// NewConnection creates a connection for one open stream. cfg must
// already have defaults applied (the hub does this once at startup).
func NewConnection(sessionID string, cfg Config, log *logger.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:        id,
		sessionID: sessionID,
		cfg:       cfg,
		log: log.WithFields(map[string]interface{}{
			logger.FieldConnectionID: id,
			logger.FieldSessionID:    sessionID,
		}),
		frames:   make(chan []byte, cfg.ChannelBuffer),
		lastPing: time.Now(),
	}
}

// ID returns the connection's UUID, stable for the stream's lifetime.
func (c *Connection) ID() string { return c.id }

// SessionID returns the owning session identifier.
func (c *Connection) SessionID() string { return c.sessionID }

// Frames returns the outbound frame channel for the transport loop to
// drain. The channel is closed when the connection closes.
func (c *Connection) Frames() <-chan []byte { return c.frames }

// Connected reports whether the connection can still accept writes.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// LastPing returns the time of the most recent ping activity.
func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

// TouchPing records ping activity (a client-initiated ping receipt)
// without emitting a ping frame.
func (c *Connection) TouchPing(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = now
}

// Send serializes {event, payload, sequenceId} and writes it as one
// frame, then caches the entry for retry until acknowledged. It fails
// with STREAM_BACKPRESSURE when the outbound buffer is full and with
// CONNECTION_CLOSED after Close; neither failure advances the sequence
// counter. The assigned sequence id is returned on success.
func (c *Connection) Send(event string, payload any) (int64, *errors.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errors.ConnectionClosed(c.id)
	}

	seqID := c.seq
	data, err := json.Marshal(Frame{Event: event, Data: payload, ID: seqID})
	if err != nil {
		return 0, errors.Internal(err).WithDetail("event", event)
	}

	select {
	case c.frames <- data:
	default:
		return 0, errors.StreamBackpressure(c.id)
	}

	c.seq++
	c.cacheAppend(CacheEntry{
		Event:      event,
		SequenceID: seqID,
		SentAt:     time.Now(),
		frame:      data,
	})
	return seqID, nil
}

// Notify sends a notification event.
func (c *Connection) Notify(notification any) (int64, *errors.AppError) {
	return c.Send(EventNotification, notification)
}

// Ping records liveness and emits a ping frame. The ping is cached
// like any other frame, so a dropped ping is retried as data would be.
func (c *Connection) Ping(now time.Time) (int64, *errors.AppError) {
	c.TouchPing(now)
	return c.Send(EventPing, map[string]int64{"ts": now.UnixMilli()})
}

// Ack purges all cached entries with sequence id ≤ sequenceID. It is a
// no-op when nothing matches and returns the number of purged entries.
func (c *Connection) Ack(sequenceID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The cache is FIFO in sequence order: find the first survivor.
	idx := 0
	for idx < len(c.cache) && c.cache[idx].SequenceID <= sequenceID {
		idx++
	}
	if idx == 0 {
		return 0
	}
	purged := idx
	c.cache = append(c.cache[:0], c.cache[idx:]...)
	return purged
}

// RetryCached re-emits every cached frame that is still inside the TTL
// and under the retry ceiling, counting the attempt whether or not the
// write lands. Expired or over-ceiling entries are dropped silently:
// the contract is at-most-N-retries, not guaranteed delivery. It
// returns the number of retried and dropped entries.
func (c *Connection) RetryCached(now time.Time) (retried, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, 0
	}

	kept := c.cache[:0]
	for _, entry := range c.cache {
		if now.Sub(entry.SentAt) >= c.cfg.CacheTTL || entry.Retries >= c.cfg.MaxRetries {
			dropped++
			continue
		}
		select {
		case c.frames <- entry.frame:
		default:
			// Buffer full; the attempt still counts against the ceiling.
		}
		entry.Retries++
		retried++
		kept = append(kept, entry)
	}
	c.cache = kept
	return retried, dropped
}

// ReportState stores a client-reported state blob, rate-limited to one
// report per configured minimum interval. A violation fails only this
// call; the connection stays healthy.
func (c *Connection) ReportState(state any) *errors.AppError {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ConnectionClosed(c.id)
	}
	now := time.Now()
	if !c.lastStateAt.IsZero() && now.Sub(c.lastStateAt) < c.cfg.StateMinInterval {
		return errors.RateLimited("report_state").
			WithDetail("min_interval_ms", c.cfg.StateMinInterval.Milliseconds())
	}
	c.lastState = state
	c.lastStateAt = now
	return nil
}

// State returns the last reported client state, or nil.
func (c *Connection) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}

// OnClose registers a listener fired exactly once when the connection
// closes. If the connection is already closed the listener fires
// immediately, so registrations cannot be lost to a racing close.
func (c *Connection) OnClose(fn CloseListener) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn(c)
		return
	}
	c.closeListeners = append(c.closeListeners, fn)
	c.mu.Unlock()
}

// Close tears the connection down: clears the cache, emits a
// best-effort final close frame, closes the outbound channel, and
// fires close listeners exactly once. Safe to call repeatedly — the
// sweep and the client-driven close path may race here.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cache = nil

	if data, err := json.Marshal(Frame{Event: EventClose, ID: c.seq}); err == nil {
		select {
		case c.frames <- data:
		default:
		}
	}
	close(c.frames)

	listeners := c.closeListeners
	c.closeListeners = nil
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
	c.log.Debug("connection closed")
}

// CacheLen returns the number of cached unacknowledged frames.
func (c *Connection) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// CacheEntries returns a copy of the retry cache for observability.
func (c *Connection) CacheEntries() []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheEntry, len(c.cache))
	copy(out, c.cache)
	return out
}

// cacheAppend adds an entry, evicting the oldest when at capacity.
// Callers hold c.mu.
func (c *Connection) cacheAppend(entry CacheEntry) {
	if len(c.cache) >= c.cfg.CacheCapacity {
		over := len(c.cache) - c.cfg.CacheCapacity + 1
		c.cache = append(c.cache[:0], c.cache[over:]...)
	}
	c.cache = append(c.cache, entry)
}
