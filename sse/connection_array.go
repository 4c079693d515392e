package sse

import "github.com/kbukum/streamkit/errors"

// ConnectionArray is a transient fan-out view over the connections of
// one session. It is a snapshot: connections added to the session after
// construction are not included, and closed members simply fail their
// individual sends.
type ConnectionArray struct {
	sessionID   string
	connections []*Connection
}

// NewConnectionArray builds a view over the given connections. The
// slice is copied so later mutation of the argument has no effect.
func NewConnectionArray(sessionID string, conns []*Connection) *ConnectionArray {
	out := make([]*Connection, len(conns))
	copy(out, conns)
	return &ConnectionArray{sessionID: sessionID, connections: out}
}

// SessionID returns the session this view groups.
func (a *ConnectionArray) SessionID() string { return a.sessionID }

// Add appends a connection to the view. Duplicates (same connection id)
// are ignored.
func (a *ConnectionArray) Add(conn *Connection) {
	for _, existing := range a.connections {
		if existing.ID() == conn.ID() {
			return
		}
	}
	a.connections = append(a.connections, conn)
}

// Remove drops the connection with the given id from the view. It
// reports whether a member was removed.
func (a *ConnectionArray) Remove(id string) bool {
	for i, conn := range a.connections {
		if conn.ID() == id {
			a.connections = append(a.connections[:i], a.connections[i+1:]...)
			return true
		}
	}
	return false
}

// Each calls fn for every member in order.
func (a *ConnectionArray) Each(fn func(*Connection)) {
	for _, conn := range a.connections {
		fn(conn)
	}
}

// Len returns the number of connections in the view.
func (a *ConnectionArray) Len() int { return len(a.connections) }

// Connections returns the members of the view.
func (a *ConnectionArray) Connections() []*Connection { return a.connections }

// Send delivers the event to every member. Delivery is best-effort per
// member: one failure neither stops the loop nor revokes frames already
// written. The returned map holds the failing connection ids.
func (a *ConnectionArray) Send(event string, payload any) map[string]*errors.AppError {
	var failed map[string]*errors.AppError
	for _, conn := range a.connections {
		if _, err := conn.Send(event, payload); err != nil {
			if failed == nil {
				failed = make(map[string]*errors.AppError)
			}
			failed[conn.ID()] = err
		}
	}
	return failed
}

// Notify fans a notification event out to every member.
func (a *ConnectionArray) Notify(notification any) map[string]*errors.AppError {
	return a.Send(EventNotification, notification)
}
