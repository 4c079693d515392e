package session

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/streamkit/errors"
)

// Record is one session's persisted state.
type Record struct {
	ID        string         `json:"id"`
	Tabs      int            `json:"tabs"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the persistence surface the session layer consumes. The
// connection layer only needs IncrementTabs; the full interface serves
// the manager admin endpoints.
type Store interface {
	// GetSession resolves a session record by id.
	GetSession(ctx context.Context, sessionID string) (*Record, error)

	// UpdateSession merges partial fields into the record, creating it
	// if absent.
	UpdateSession(ctx context.Context, sessionID string, fields map[string]any) error

	// IncrementTabs adjusts the session's open-tab counter by delta,
	// creating the record if absent, and returns the new count. The
	// count never goes below zero.
	IncrementTabs(ctx context.Context, sessionID string, delta int) (int, error)

	// DeleteSession removes the record. Unknown ids are a no-op.
	DeleteSession(ctx context.Context, sessionID string) error
}

// MemoryStore is the in-process Store for tests and single-node
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// GetSession resolves a session record by id.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, errors.NotFound("session", sessionID)
	}
	out := *rec
	return &out, nil
}

// UpdateSession merges partial fields into the record, creating it if
// absent.
func (s *MemoryStore) UpdateSession(_ context.Context, sessionID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.upsert(sessionID)
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = time.Now()
	return nil
}

// IncrementTabs adjusts the open-tab counter, clamped at zero.
func (s *MemoryStore) IncrementTabs(_ context.Context, sessionID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.upsert(sessionID)
	rec.Tabs += delta
	if rec.Tabs < 0 {
		rec.Tabs = 0
	}
	rec.UpdatedAt = time.Now()
	return rec.Tabs, nil
}

// DeleteSession removes the record.
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

// upsert returns the record for sessionID, creating it if absent.
// Callers hold s.mu.
func (s *MemoryStore) upsert(sessionID string) *Record {
	rec, ok := s.records[sessionID]
	if !ok {
		now := time.Now()
		rec = &Record{ID: sessionID, CreatedAt: now, UpdatedAt: now}
		s.records[sessionID] = rec
	}
	return rec
}
