package sse

import (
	"sync"
	"time"
)

// Frame is the wire payload of one server→client message. It is
// serialized as JSON and written as a single `data: ...` block.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	ID    int64  `json:"id"`
}

// Infrastructure event names. Domain events use their own names and
// travel through the same framing.
const (
	// EventConnected is the first frame on a new stream; its data
	// carries the connection and session identifiers.
	EventConnected = "connected"

	// EventPing is the liveness frame emitted by the sweep. Cached and
	// retried like any other frame.
	EventPing = "ping"

	// EventClose is the best-effort final frame before a stream closes.
	EventClose = "close"

	// EventNotification is the generic notification envelope.
	EventNotification = "notification"
)

// ConnectEvent is published when a connection is registered.
type ConnectEvent struct {
	ConnectionID string
	SessionID    string
	At           time.Time
}

// DisconnectEvent is published when a connection leaves the registry.
type DisconnectEvent struct {
	ConnectionID string
	SessionID    string
	Reason       string
	At           time.Time
}

// StateChangeEvent is published when a connection accepts a new
// client-state report.
type StateChangeEvent struct {
	ConnectionID string
	SessionID    string
	State        any
	At           time.Time
}

// Signals is a typed publish/subscribe surface for connection
// lifecycle events. Listener callbacks run synchronously on the
// publishing goroutine and must not block.
type Signals struct {
	mu          sync.RWMutex
	nextID      int
	connect     map[int]func(ConnectEvent)
	disconnect  map[int]func(DisconnectEvent)
	stateChange map[int]func(StateChangeEvent)
}

// NewSignals creates an empty signal bus.
func NewSignals() *Signals {
	return &Signals{
		connect:     make(map[int]func(ConnectEvent)),
		disconnect:  make(map[int]func(DisconnectEvent)),
		stateChange: make(map[int]func(StateChangeEvent)),
	}
}

// OnConnect registers a connect listener and returns its unsubscribe.
func (s *Signals) OnConnect(fn func(ConnectEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.connect[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.connect, id)
	}
}

// OnDisconnect registers a disconnect listener and returns its unsubscribe.
func (s *Signals) OnDisconnect(fn func(DisconnectEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.disconnect[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.disconnect, id)
	}
}

// OnStateChange registers a state-change listener and returns its unsubscribe.
func (s *Signals) OnStateChange(fn func(StateChangeEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.stateChange[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.stateChange, id)
	}
}

// PublishConnect delivers ev to all connect listeners.
func (s *Signals) PublishConnect(ev ConnectEvent) {
	for _, fn := range s.connectListeners() {
		fn(ev)
	}
}

// PublishDisconnect delivers ev to all disconnect listeners.
func (s *Signals) PublishDisconnect(ev DisconnectEvent) {
	for _, fn := range s.disconnectListeners() {
		fn(ev)
	}
}

// PublishStateChange delivers ev to all state-change listeners.
func (s *Signals) PublishStateChange(ev StateChangeEvent) {
	for _, fn := range s.stateListeners() {
		fn(ev)
	}
}

// Listener snapshots are taken under the read lock and invoked outside
// it, so a listener may subscribe or unsubscribe without deadlocking.

func (s *Signals) connectListeners() []func(ConnectEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]func(ConnectEvent), 0, len(s.connect))
	for _, fn := range s.connect {
		out = append(out, fn)
	}
	return out
}

func (s *Signals) disconnectListeners() []func(DisconnectEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]func(DisconnectEvent), 0, len(s.disconnect))
	for _, fn := range s.disconnect {
		out = append(out, fn)
	}
	return out
}

func (s *Signals) stateListeners() []func(StateChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]func(StateChangeEvent), 0, len(s.stateChange))
	for _, fn := range s.stateChange {
		out = append(out, fn)
	}
	return out
}
